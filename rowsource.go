package bulkcopy

import (
	"bytes"
	"database/sql"
	"fmt"
	"iter"
)

// RowSource 游标式行数据源（用法与 *sql.Rows 一致）
//
//	for src.Next() {
//		values, err := src.Values()
//		...
//	}
//	err := src.Err()
type RowSource interface {
	// Next 前进到下一行，没有更多行时返回 false
	Next() bool

	// Values 返回当前行的值，返回的切片归调用方所有
	Values() (Row, error)

	// Err 迭代过程中发生的错误
	Err() error
}

// SliceSource 基于内存切片的 RowSource
type SliceSource struct {
	rows []Row
	pos  int
}

// NewSliceSource 创建内存数据源
func NewSliceSource(rows []Row) *SliceSource {
	return &SliceSource{rows: rows, pos: -1}
}

func (s *SliceSource) Next() bool {
	if s.pos+1 >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceSource) Values() (Row, error) {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil, fmt.Errorf("no current row")
	}
	return s.rows[s.pos], nil
}

func (s *SliceSource) Err() error { return nil }

// SQLRowSource 把 *sql.Rows 适配为 RowSource，每行扫描为 []any
type SQLRowSource struct {
	rows    *sql.Rows
	columns int
	err     error
}

// NewSQLRowSource 包装查询结果；调用方负责在加载结束后关闭 rows
func NewSQLRowSource(rows *sql.Rows) (*SQLRowSource, error) {
	if rows == nil {
		return nil, fmt.Errorf("%w: rows cannot be nil", ErrConfiguration)
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRowSource, err)
	}
	return &SQLRowSource{rows: rows, columns: len(cols)}, nil
}

func (s *SQLRowSource) Next() bool {
	return s.rows.Next()
}

func (s *SQLRowSource) Values() (Row, error) {
	values := make(Row, s.columns)
	dest := make([]any, s.columns)
	for i := range values {
		dest[i] = &values[i]
	}
	if err := s.rows.Scan(dest...); err != nil {
		return nil, err
	}
	// 驱动可能复用 []byte 缓冲区
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = bytes.Clone(b)
		}
	}
	return values, nil
}

func (s *SQLRowSource) Err() error {
	return s.rows.Err()
}

// sourceRows 把 RowSource 转换为行序列，读取错误记录到 *errp
func sourceRows(src RowSource, errp *error) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for src.Next() {
			row, err := src.Values()
			if err != nil {
				*errp = fmt.Errorf("%w: %v", ErrRowSource, err)
				return
			}
			if !yield(row) {
				return
			}
		}
		if err := src.Err(); err != nil {
			*errp = fmt.Errorf("%w: %v", ErrRowSource, err)
		}
	}
}
