package bulkcopy

import (
	"fmt"

	"github.com/rushairer/bulkcopy/rowbinary"
)

// DefaultBufferCapacity 每批编码缓冲区的初始容量
const DefaultBufferCapacity = 256 * 1024

// BatchEncoder 把批次按列位置编码为一段连续的 RowBinary 数据
type BatchEncoder struct {
	bufferCapacity int
}

// NewBatchEncoder 创建编码器，capacity <= 0 时使用 DefaultBufferCapacity
func NewBatchEncoder(capacity int) *BatchEncoder {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &BatchEncoder{bufferCapacity: capacity}
}

// Encode 逐行、逐列编码；行的值个数必须与列数完全一致
func (e *BatchEncoder) Encode(batch Batch, columns []rowbinary.Column) ([]byte, error) {
	if batch.Len() == 0 {
		return nil, ErrEmptyBatch
	}
	w := rowbinary.NewWriter(e.bufferCapacity)
	for i, row := range batch.Rows {
		if len(row) != len(columns) {
			return nil, &RowError{
				Row:    i,
				Column: -1,
				Err:    fmt.Errorf("%w: got %d values, want %d", ErrRowArity, len(row), len(columns)),
			}
		}
		for j, col := range columns {
			if err := col.Type.Encode(w, row[j]); err != nil {
				return nil, &RowError{Row: i, Column: j, Name: col.Name, Err: err}
			}
		}
	}
	return w.Bytes(), nil
}
