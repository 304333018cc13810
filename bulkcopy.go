// Package bulkcopy 以 ClickHouse RowBinary 格式批量写入行数据
//
// 行序列被切分为固定大小的批次，按目标表的列类型逐批编码，
// 并以受限的并发度发送到传输层，同时累计已提交的行数。
package bulkcopy

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/rs/zerolog"
)

// Connection 同时具备发送与元数据查询能力的连接（例如 drivers/clickhouse.Client）
type Connection interface {
	Transport
	SchemaResolver
}

// BulkCopy 批量写入入口
//
// 配置通过 With... 链式设置；每次 WriteRows/WriteFromSource 会拍下配置快照，
// 加载期间修改配置不影响正在进行的加载。
type BulkCopy struct {
	mu              sync.RWMutex
	config          Config
	transport       Transport
	resolver        SchemaResolver
	metricsReporter MetricsReporter
	logger          zerolog.Logger
	ownsConnection  bool

	rowsWritten ProgressCounter
	closeOnce   sync.Once
	closeErr    error
}

// NewBulkCopy 使用默认配置创建
func NewBulkCopy(transport Transport, resolver SchemaResolver) *BulkCopy {
	return NewBulkCopyWithConfig(transport, resolver, DefaultConfig())
}

// NewBulkCopyWithConfig 使用指定配置创建，配置在加载时才校验
func NewBulkCopyWithConfig(transport Transport, resolver SchemaResolver, config Config) *BulkCopy {
	return &BulkCopy{
		config:          config,
		transport:       transport,
		resolver:        resolver,
		metricsReporter: NewNoopMetricsReporter(),
		logger:          zerolog.Nop(),
	}
}

// NewBulkCopyFromConnection 由连接创建，Close 时一并关闭连接
func NewBulkCopyFromConnection(conn Connection) *BulkCopy {
	b := NewBulkCopy(conn, conn)
	b.ownsConnection = conn != nil
	return b
}

// WithDestinationTable 设置目标表
func (b *BulkCopy) WithDestinationTable(table string) *BulkCopy {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.DestinationTable = table
	return b
}

// WithBatchSize 设置每批行数
func (b *BulkCopy) WithBatchSize(size int) *BulkCopy {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.BatchSize = size
	return b
}

// WithConcurrencyLimit 设置同时在途的批次上限
func (b *BulkCopy) WithConcurrencyLimit(limit int) *BulkCopy {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.MaxDegreeOfParallelism = limit
	return b
}

// WithBufferCapacity 设置编码缓冲区初始容量
func (b *BulkCopy) WithBufferCapacity(capacity int) *BulkCopy {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.BufferCapacity = capacity
	return b
}

// WithMetricsReporter 设置指标报告器，nil 恢复为空实现
func (b *BulkCopy) WithMetricsReporter(reporter MetricsReporter) *BulkCopy {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reporter == nil {
		reporter = NewNoopMetricsReporter()
	}
	b.metricsReporter = reporter
	return b
}

// WithLogger 设置日志
func (b *BulkCopy) WithLogger(logger zerolog.Logger) *BulkCopy {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// Config 当前配置
func (b *BulkCopy) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// RowsWritten 所有加载累计成功写入的行数
func (b *BulkCopy) RowsWritten() int64 {
	return b.rowsWritten.Value()
}

// NewSession 以当前配置创建一次性加载会话
func (b *BulkCopy) NewSession() *LoadSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &LoadSession{
		config:          b.config,
		resolver:        b.resolver,
		transport:       b.transport,
		metricsReporter: b.metricsReporter,
		logger:          b.logger,
		total:           &b.rowsWritten,
	}
}

// WriteRows 加载惰性行序列，返回本次成功写入的行数
// 失败时返回的行数仍包含已成功的批次
func (b *BulkCopy) WriteRows(ctx context.Context, rows iter.Seq[Row]) (int64, error) {
	return b.NewSession().Run(ctx, rows)
}

// WriteFromSource 加载游标式数据源（例如 SQLRowSource）
func (b *BulkCopy) WriteFromSource(ctx context.Context, src RowSource) (int64, error) {
	return b.NewSession().RunSource(ctx, src)
}

// Close 由 NewBulkCopyFromConnection 创建时关闭连接
func (b *BulkCopy) Close() error {
	b.closeOnce.Do(func() {
		if !b.ownsConnection {
			return
		}
		if closer, ok := b.transport.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				b.closeErr = fmt.Errorf("close connection: %w", err)
			}
		}
	})
	return b.closeErr
}

var _ io.Closer = (*BulkCopy)(nil)
