// Package rowbinary 实现 ClickHouse RowBinary 行格式的列编码器
package rowbinary

import (
	"encoding/binary"
	"math"
)

// Writer 追加式 RowBinary 缓冲区（非并发安全，每个批次独占一个）
type Writer struct {
	buf []byte
}

// NewWriter 创建 Writer，capacity 为初始容量提示
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes 返回已写入的数据（与内部缓冲区共享）
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) WriteUInt8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUInt16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUInt32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUInt64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteUInt32(math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) {
	w.WriteUInt64(math.Float64bits(v))
}

// WriteUVarInt LEB128 变长整数（字符串长度、数组长度）
func (w *Writer) WriteUVarInt(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// WriteString 长度前缀字符串
func (w *Writer) WriteString(s string) {
	w.WriteUVarInt(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteRaw 原样追加字节
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}
