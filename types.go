package bulkcopy

import (
	"errors"
	"fmt"
)

// Row 一行数据；值的含义由目标表的列顺序决定，与名字无关
type Row = []any

// Batch 按数据源顺序切分出的一组行
type Batch struct {
	Seq  int   // 在本次加载中的序号（从 0 开始）
	Rows []Row // 行数据，长度不超过 BatchSize
}

// Len 批次行数
func (b Batch) Len() int {
	return len(b.Rows)
}

// BatchError 单个批次的失败（编码或发送）
type BatchError struct {
	Seq  int   `json:"seq"`
	Rows int   `json:"rows"`
	Kind error `json:"-"` // ErrEncoding 或 ErrTransport
	Err  error `json:"-"`
}

// Error implements the error interface
func (be *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d rows): %v: %v", be.Seq, be.Rows, be.Kind, be.Err)
}

// Unwrap 同时暴露错误类别与底层错误
func (be *BatchError) Unwrap() []error {
	return []error{be.Kind, be.Err}
}

// IsEncoding 是否为编码失败
func (be *BatchError) IsEncoding() bool {
	return errors.Is(be.Kind, ErrEncoding)
}

// RowError 行级编码错误，定位到行与列
type RowError struct {
	Row    int    // 批次内行号
	Column int    // 列位置，-1 表示整行（列数不一致）
	Name   string // 列名（可能为空）
	Err    error
}

// Error implements the error interface
func (re *RowError) Error() string {
	if re.Column < 0 {
		return fmt.Sprintf("row %d: %v", re.Row, re.Err)
	}
	return fmt.Sprintf("row %d, column %d (%s): %v", re.Row, re.Column, re.Name, re.Err)
}

func (re *RowError) Unwrap() error {
	return re.Err
}
