package bulkcopy

import (
	"context"
	"fmt"

	"github.com/rushairer/bulkcopy/rowbinary"
)

// FormatRowBinary 目标存储识别的行格式名
const FormatRowBinary = "RowBinary"

// Transport 外部传输层：发送 INSERT 语句与二进制数据，只关心成功或失败
// 实现必须支持并发调用
type Transport interface {
	Push(ctx context.Context, query string, payload []byte) error
}

// SchemaResolver 通过零行元数据查询获取目标表的列类型（按建表顺序）
type SchemaResolver interface {
	ResolveSchema(ctx context.Context, table string) ([]rowbinary.Column, error)
}

// BatchProcessor 批量处理器接口：先编码，再发送
// 两步在同一个并发槽位内完成
type BatchProcessor interface {
	// EncodeBatch 生成批次的二进制数据
	EncodeBatch(ctx context.Context, batch Batch) ([]byte, error)

	// PushBatch 发送编码后的数据
	PushBatch(ctx context.Context, batch Batch, payload []byte) error
}

var _ BatchProcessor = (*RowBinaryBatchProcessor)(nil)

// RowBinaryBatchProcessor 以 RowBinary 格式写入目标表
// 架构位置：ThrottledBatchExecutor -> RowBinaryBatchProcessor -> Transport -> Database
type RowBinaryBatchProcessor struct {
	transport Transport
	encoder   *BatchEncoder
	columns   []rowbinary.Column
	query     string
}

// NewRowBinaryBatchProcessor 创建处理器，columns 在整个加载期间只读共享
func NewRowBinaryBatchProcessor(transport Transport, encoder *BatchEncoder, table string, columns []rowbinary.Column) *RowBinaryBatchProcessor {
	if encoder == nil {
		encoder = NewBatchEncoder(0)
	}
	return &RowBinaryBatchProcessor{
		transport: transport,
		encoder:   encoder,
		columns:   columns,
		query:     InsertQuery(table),
	}
}

// InsertQuery 生成 INSERT INTO <table> FORMAT RowBinary
func InsertQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s FORMAT %s", table, FormatRowBinary)
}

// Query 返回发送时使用的语句
func (p *RowBinaryBatchProcessor) Query() string {
	return p.query
}

func (p *RowBinaryBatchProcessor) EncodeBatch(_ context.Context, batch Batch) ([]byte, error) {
	return p.encoder.Encode(batch, p.columns)
}

func (p *RowBinaryBatchProcessor) PushBatch(ctx context.Context, _ Batch, payload []byte) error {
	return p.transport.Push(ctx, p.query, payload)
}
