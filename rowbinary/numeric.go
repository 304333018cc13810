package rowbinary

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// IntType 定长整数 Int8..Int64 / UInt8..UInt64
type IntType struct {
	name   string
	bits   int
	signed bool
}

var (
	Int8   = IntType{name: "Int8", bits: 8, signed: true}
	Int16  = IntType{name: "Int16", bits: 16, signed: true}
	Int32  = IntType{name: "Int32", bits: 32, signed: true}
	Int64  = IntType{name: "Int64", bits: 64, signed: true}
	UInt8  = IntType{name: "UInt8", bits: 8}
	UInt16 = IntType{name: "UInt16", bits: 16}
	UInt32 = IntType{name: "UInt32", bits: 32}
	UInt64 = IntType{name: "UInt64", bits: 64}
)

func (t IntType) Name() string { return t.name }

func (t IntType) Encode(w *Writer, v any) error {
	var u uint64
	if t.signed {
		n, err := toInt64(v)
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		if t.bits < 64 {
			limit := int64(1) << (t.bits - 1)
			if n < -limit || n >= limit {
				return invalid(t, v, "%w", errOverflow)
			}
		}
		u = uint64(n)
	} else {
		n, err := toUint64(v)
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		if t.bits < 64 && n >= uint64(1)<<t.bits {
			return invalid(t, v, "%w", errOverflow)
		}
		u = n
	}
	writeFixed(w, u, t.bits)
	return nil
}

func writeFixed(w *Writer, u uint64, bits int) {
	switch bits {
	case 8:
		w.WriteUInt8(uint8(u))
	case 16:
		w.WriteUInt16(uint16(u))
	case 32:
		w.WriteUInt32(uint32(u))
	default:
		w.WriteUInt64(u)
	}
}

// FloatType Float32 / Float64
type FloatType struct {
	bits int
}

var (
	Float32 = FloatType{bits: 32}
	Float64 = FloatType{bits: 64}
)

func (t FloatType) Name() string {
	if t.bits == 32 {
		return "Float32"
	}
	return "Float64"
}

func (t FloatType) Encode(w *Writer, v any) error {
	f, err := toFloat64(v)
	if err != nil {
		return wrapInvalid(t, v, err)
	}
	if t.bits == 32 {
		w.WriteFloat32(float32(f))
	} else {
		w.WriteFloat64(f)
	}
	return nil
}

// BoolType 单字节 0/1
type BoolType struct{}

var Bool = BoolType{}

func (BoolType) Name() string { return "Bool" }

func (t BoolType) Encode(w *Writer, v any) error {
	b, err := toBool(v)
	if err != nil {
		return wrapInvalid(t, v, err)
	}
	if b {
		w.WriteUInt8(1)
	} else {
		w.WriteUInt8(0)
	}
	return nil
}

// DecimalType Decimal(P, S)，P <= 18，按 10^S 缩放后写入 Int32/Int64
type DecimalType struct {
	precision int
	scale     int
}

// NewDecimal 创建 Decimal(P, S)
func NewDecimal(precision, scale int) (DecimalType, error) {
	if precision < 1 || precision > 18 {
		return DecimalType{}, fmt.Errorf("%w: Decimal precision %d (supported 1..18)", ErrUnsupportedType, precision)
	}
	if scale < 0 || scale > precision {
		return DecimalType{}, fmt.Errorf("%w: Decimal scale %d", ErrUnsupportedType, scale)
	}
	return DecimalType{precision: precision, scale: scale}, nil
}

func (t DecimalType) Name() string {
	return fmt.Sprintf("Decimal(%d, %d)", t.precision, t.scale)
}

func (t DecimalType) Encode(w *Writer, v any) error {
	scaled, err := t.scaled(v)
	if err != nil {
		return wrapInvalid(t, v, err)
	}
	limit := int64(math.Pow10(t.precision))
	if scaled <= -limit || scaled >= limit {
		return invalid(t, v, "%w", errOverflow)
	}
	if t.precision <= 9 {
		w.WriteUInt32(uint32(int32(scaled)))
	} else {
		w.WriteUInt64(uint64(scaled))
	}
	return nil
}

func (t DecimalType) scaled(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		return parseDecimal(x, t.scale)
	case []byte:
		return parseDecimal(string(x), t.scale)
	case json.Number:
		return parseDecimal(string(x), t.scale)
	case float32:
		return floatToInt64(math.Round(float64(x) * math.Pow10(t.scale)))
	case float64:
		return floatToInt64(math.Round(x * math.Pow10(t.scale)))
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	mul := int64(math.Pow10(t.scale))
	if n > math.MaxInt64/mul || n < math.MinInt64/mul {
		return 0, errOverflow
	}
	return n * mul, nil
}

// parseDecimal 精确解析十进制文本，多余的小数位被截断
func parseDecimal(s string, scale int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty decimal")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) > scale {
		frac = frac[:scale]
	}
	frac += strings.Repeat("0", scale-len(frac))
	digits := intPart + frac
	if digits == "" {
		return 0, fmt.Errorf("malformed decimal %q", s)
	}
	var n int64
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("malformed decimal %q", s)
		}
		if n > (math.MaxInt64-int64(c-'0'))/10 {
			return 0, errOverflow
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
