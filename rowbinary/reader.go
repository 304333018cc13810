package rowbinary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxStringLen 防止损坏的长度前缀导致超大分配
const maxStringLen = 1 << 20

// Reader RowBinary 读取器，目前只用于解析 RowBinaryWithNamesAndTypes 头部
type Reader struct {
	r *bufio.Reader
}

// NewReader 创建读取器
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// ReadUVarInt 读取 LEB128 变长整数
func (r *Reader) ReadUVarInt() (uint64, error) {
	return binary.ReadUvarint(r.r)
}

// ReadString 读取长度前缀字符串
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUVarInt()
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadHeader 解析 RowBinaryWithNamesAndTypes 头部：列数、列名、类型名
func ReadHeader(r io.Reader) (names []string, types []string, err error) {
	rd := NewReader(r)
	n, err := rd.ReadUVarInt()
	if err != nil {
		return nil, nil, fmt.Errorf("read column count: %w", err)
	}
	if n > 1<<16 {
		return nil, nil, fmt.Errorf("column count %d exceeds limit", n)
	}
	names = make([]string, n)
	for i := range names {
		if names[i], err = rd.ReadString(); err != nil {
			return nil, nil, fmt.Errorf("read column name %d: %w", i, err)
		}
	}
	types = make([]string, n)
	for i := range types {
		if types[i], err = rd.ReadString(); err != nil {
			return nil, nil, fmt.Errorf("read column type %d: %w", i, err)
		}
	}
	return names, types, nil
}

// ParseHeader 解析头部并为每一列构造编码器
func ParseHeader(r io.Reader) ([]Column, error) {
	names, types, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	columns := make([]Column, len(names))
	for i := range names {
		t, err := ParseType(types[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", names[i], err)
		}
		columns[i] = Column{Name: names[i], Type: t}
	}
	return columns, nil
}
