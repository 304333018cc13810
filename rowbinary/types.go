package rowbinary

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType 不支持的列类型
	ErrUnsupportedType = errors.New("unsupported column type")

	// ErrInvalidValue 值无法按列类型编码
	ErrInvalidValue = errors.New("invalid value for column type")
)

// ColumnType 列类型描述符：负责把单个值按 RowBinary 追加到缓冲区
// 实现必须是不可变的，可被多个批次并发只读共享
type ColumnType interface {
	// Name 返回 ClickHouse 类型名，如 Nullable(String)
	Name() string

	// Encode 将 v 编码追加到 w
	Encode(w *Writer, v any) error
}

// Column 目标表中的一列；绑定关系只看位置，Name 仅用于诊断
type Column struct {
	Name string
	Type ColumnType
}

// String 返回 "name Type"
func (c Column) String() string {
	if c.Type == nil {
		return c.Name + " <nil>"
	}
	return c.Name + " " + c.Type.Name()
}

// ValueError 单个值的编码错误
type ValueError struct {
	Type  string
	Value any
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("cannot encode %T(%v) as %s: %v", e.Value, e.Value, e.Type, e.Err)
}

func (e *ValueError) Unwrap() []error {
	return []error{ErrInvalidValue, e.Err}
}

func invalid(t ColumnType, v any, format string, args ...any) error {
	return &ValueError{Type: t.Name(), Value: v, Err: fmt.Errorf(format, args...)}
}

func wrapInvalid(t ColumnType, v any, err error) error {
	var ve *ValueError
	if errors.As(err, &ve) {
		return err
	}
	return &ValueError{Type: t.Name(), Value: v, Err: err}
}
