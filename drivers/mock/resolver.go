package mock

import (
	"context"
	"sync/atomic"

	"github.com/rushairer/bulkcopy/rowbinary"
)

// Resolver 模拟元数据查询：返回固定列并统计调用次数
type Resolver struct {
	columns []rowbinary.Column
	err     error
	calls   atomic.Int64
}

// NewResolver 创建返回给定列的解析器
func NewResolver(columns ...rowbinary.Column) *Resolver {
	return &Resolver{columns: columns}
}

// WithError 之后每次查询都返回 err
func (r *Resolver) WithError(err error) *Resolver {
	r.err = err
	return r
}

func (r *Resolver) ResolveSchema(_ context.Context, _ string) ([]rowbinary.Column, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.columns, nil
}

// Calls 查询次数
func (r *Resolver) Calls() int {
	return int(r.calls.Load())
}

// Connection 组合 Transport 与 Resolver，模拟一个同时能查询元数据和写入的连接
type Connection struct {
	*Transport
	*Resolver
}

// NewConnection 创建模拟连接
func NewConnection(columns ...rowbinary.Column) *Connection {
	return &Connection{Transport: NewTransport(), Resolver: NewResolver(columns...)}
}
