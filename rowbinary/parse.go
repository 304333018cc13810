package rowbinary

import (
	"fmt"
	"strconv"
	"strings"
)

var simpleTypes = map[string]ColumnType{
	"Int8":     Int8,
	"Int16":    Int16,
	"Int32":    Int32,
	"Int64":    Int64,
	"UInt8":    UInt8,
	"UInt16":   UInt16,
	"UInt32":   UInt32,
	"UInt64":   UInt64,
	"Float32":  Float32,
	"Float64":  Float64,
	"Bool":     Bool,
	"Boolean":  Bool,
	"String":   String,
	"Date":     Date,
	"Date32":   Date32,
	"DateTime": DateTimeType{},
	"UUID":     UUID,
	"IPv4":     IPv4,
	"IPv6":     IPv6,
}

// ParseType 解析 ClickHouse 类型名并返回对应的编码器
func ParseType(name string) (ColumnType, error) {
	name = strings.TrimSpace(name)
	if t, ok := simpleTypes[name]; ok {
		return t, nil
	}

	open := strings.IndexByte(name, '(')
	if open <= 0 || !strings.HasSuffix(name, ")") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
	}
	base := name[:open]
	args, err := splitArgs(name[open+1 : len(name)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedType, name, err)
	}

	switch base {
	case "Nullable", "LowCardinality", "Array":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		inner, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		switch base {
		case "Nullable":
			return NewNullable(inner), nil
		case "LowCardinality":
			return NewLowCardinality(inner), nil
		}
		return NewArray(inner), nil

	case "SimpleAggregateFunction":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		return ParseType(args[1])

	case "FixedString":
		n, err := intArgs(args, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		return NewFixedString(n[0])

	case "DateTime":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		return NewDateTime(unquote(args[0]))

	case "DateTime64":
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		p, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		tz := ""
		if len(args) == 2 {
			tz = unquote(args[1])
		}
		return NewDateTime64(p, tz)

	case "Decimal":
		n, err := intArgs(args, 2)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		return NewDecimal(n[0], n[1])

	case "Decimal32", "Decimal64":
		n, err := intArgs(args, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		if base == "Decimal32" {
			return NewDecimal(9, n[0])
		}
		return NewDecimal(18, n[0])

	case "Enum8", "Enum16":
		names := make([]string, len(args))
		values := make([]int64, len(args))
		for i, arg := range args {
			label, value, ok := strings.Cut(arg, "=")
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
			}
			names[i] = unquote(strings.TrimSpace(label))
			if values[i], err = strconv.ParseInt(strings.TrimSpace(value), 10, 64); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
			}
		}
		bits := 8
		if base == "Enum16" {
			bits = 16
		}
		return NewEnum(bits, names, values)

	case "Tuple":
		t := TupleType{elems: make([]ColumnType, len(args)), names: make([]string, len(args))}
		for i, arg := range args {
			elem, err := ParseType(arg)
			if err != nil {
				// 具名元素：name Type
				field, rest, ok := strings.Cut(arg, " ")
				if !ok {
					return nil, err
				}
				if elem, err = ParseType(rest); err != nil {
					return nil, err
				}
				t.names[i] = field
			}
			t.elems[i] = elem
		}
		return t, nil

	case "Map":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
		}
		key, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		value, err := ParseType(args[1])
		if err != nil {
			return nil, err
		}
		return NewMap(key, value), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

// splitArgs 按顶层逗号切分参数，忽略括号和单引号内部的逗号
func splitArgs(s string) ([]string, error) {
	var (
		args  []string
		depth int
		quote bool
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote:
			if c == '\\' {
				i++
			} else if c == '\'' {
				quote = false
			}
		case c == '\'':
			quote = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if quote || depth != 0 {
		return nil, fmt.Errorf("unterminated argument list")
	}
	last := strings.TrimSpace(s[start:])
	if last == "" && len(args) == 0 {
		return nil, fmt.Errorf("empty argument list")
	}
	return append(args, last), nil
}

func intArgs(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d arguments, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
		return strings.ReplaceAll(s, "\\'", "'")
	}
	return s
}
