package rowbinary

import (
	"fmt"
	"reflect"
	"strings"
)

// NullableType Nullable(T)：一个字节的空标记，非空时紧跟 T 的编码
type NullableType struct {
	inner ColumnType
}

func NewNullable(inner ColumnType) NullableType { return NullableType{inner: inner} }

func (t NullableType) Name() string { return "Nullable(" + t.inner.Name() + ")" }

func (t NullableType) Encode(w *Writer, v any) error {
	v = indirect(v)
	if v == nil {
		w.WriteUInt8(1)
		return nil
	}
	w.WriteUInt8(0)
	return t.inner.Encode(w, v)
}

// LowCardinalityType 在 RowBinary 中与内部类型编码一致
type LowCardinalityType struct {
	inner ColumnType
}

func NewLowCardinality(inner ColumnType) LowCardinalityType {
	return LowCardinalityType{inner: inner}
}

func (t LowCardinalityType) Name() string { return "LowCardinality(" + t.inner.Name() + ")" }

func (t LowCardinalityType) Encode(w *Writer, v any) error {
	return t.inner.Encode(w, v)
}

// ArrayType Array(T)：变长长度前缀 + 元素
type ArrayType struct {
	elem ColumnType
}

func NewArray(elem ColumnType) ArrayType { return ArrayType{elem: elem} }

func (t ArrayType) Name() string { return "Array(" + t.elem.Name() + ")" }

func (t ArrayType) Encode(w *Writer, v any) error {
	if items, ok := v.([]any); ok {
		w.WriteUVarInt(uint64(len(items)))
		for _, item := range items {
			if err := t.elem.Encode(w, item); err != nil {
				return err
			}
		}
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return invalid(t, v, "unsupported Go type %T", v)
	}
	w.WriteUVarInt(uint64(rv.Len()))
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Encode(w, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// TupleType Tuple(T1, T2, ...)：元素按顺序直接拼接
type TupleType struct {
	elems []ColumnType
	names []string
}

func (t TupleType) Name() string {
	parts := make([]string, len(t.elems))
	for i, e := range t.elems {
		if i < len(t.names) && t.names[i] != "" {
			parts[i] = t.names[i] + " " + e.Name()
		} else {
			parts[i] = e.Name()
		}
	}
	return "Tuple(" + strings.Join(parts, ", ") + ")"
}

func (t TupleType) Encode(w *Writer, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return invalid(t, v, "unsupported Go type %T", v)
	}
	if rv.Len() != len(t.elems) {
		return invalid(t, v, "tuple has %d elements, want %d", rv.Len(), len(t.elems))
	}
	for i, elem := range t.elems {
		if err := elem.Encode(w, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// MapType Map(K, V)：条目数 + 依次的 key/value
type MapType struct {
	key   ColumnType
	value ColumnType
}

func NewMap(key, value ColumnType) MapType { return MapType{key: key, value: value} }

func (t MapType) Name() string {
	return fmt.Sprintf("Map(%s, %s)", t.key.Name(), t.value.Name())
}

func (t MapType) Encode(w *Writer, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return invalid(t, v, "unsupported Go type %T", v)
	}
	w.WriteUVarInt(uint64(rv.Len()))
	iter := rv.MapRange()
	for iter.Next() {
		if err := t.key.Encode(w, iter.Key().Interface()); err != nil {
			return err
		}
		if err := t.value.Encode(w, iter.Value().Interface()); err != nil {
			return err
		}
	}
	return nil
}

// EnumType Enum8 / Enum16：按名字或数值编码
type EnumType struct {
	bits   int
	names  map[string]int64
	values map[int64]string
	order  []string
}

// NewEnum 创建枚举类型，bits 为 8 或 16
func NewEnum(bits int, names []string, values []int64) (EnumType, error) {
	if bits != 8 && bits != 16 {
		return EnumType{}, fmt.Errorf("%w: Enum%d", ErrUnsupportedType, bits)
	}
	if len(names) != len(values) || len(names) == 0 {
		return EnumType{}, fmt.Errorf("%w: malformed enum definition", ErrUnsupportedType)
	}
	limit := int64(1) << (bits - 1)
	t := EnumType{bits: bits, names: make(map[string]int64), values: make(map[int64]string), order: names}
	for i, name := range names {
		if values[i] < -limit || values[i] >= limit {
			return EnumType{}, fmt.Errorf("%w: enum value %d out of range", ErrUnsupportedType, values[i])
		}
		t.names[name] = values[i]
		t.values[values[i]] = name
	}
	return t, nil
}

func (t EnumType) Name() string {
	parts := make([]string, len(t.order))
	for i, name := range t.order {
		parts[i] = fmt.Sprintf("'%s' = %d", strings.ReplaceAll(name, "'", "\\'"), t.names[name])
	}
	return fmt.Sprintf("Enum%d(%s)", t.bits, strings.Join(parts, ", "))
}

func (t EnumType) Encode(w *Writer, v any) error {
	var n int64
	switch x := v.(type) {
	case string:
		val, ok := t.names[x]
		if !ok {
			return invalid(t, v, "unknown enum name %q", x)
		}
		n = val
	default:
		val, err := toInt64(v)
		if err != nil {
			return wrapInvalid(t, v, err)
		}
		if _, ok := t.values[val]; !ok {
			return invalid(t, v, "unknown enum value %d", val)
		}
		n = val
	}
	writeFixed(w, uint64(n), t.bits)
	return nil
}
