package bulkcopy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// errHalted 执行器因编码失败停止接收新批次
var errHalted = errors.New("executor halted after encoding failure")

// BatchExecutor 批量执行器接口
type BatchExecutor interface {
	// Submit 占用一个并发槽位并异步执行批次；不等待批次完成
	Submit(ctx context.Context, batch Batch) error

	// Drain 等待所有已提交批次结束，返回第一个失败
	Drain() error
}

var _ BatchExecutor = (*ThrottledBatchExecutor)(nil)

// ThrottledBatchExecutor 并发受限的批量执行器
// 架构：LoadSession -> ThrottledBatchExecutor -> BatchProcessor -> Transport
//
// 并发模型：
// - semaphore 容量即并发上限 P，占满时 Submit 阻塞在 channel 上（不轮询）
// - 每个槽位内依次完成编码与发送
// - Drain 等待所有槽位结束后才返回第一个错误，失败不会放弃仍在执行的兄弟批次
type ThrottledBatchExecutor struct {
	processor       BatchProcessor  // 具体的批量处理逻辑
	metricsReporter MetricsReporter // 性能指标报告器
	logger          zerolog.Logger
	table           string
	semaphore       chan struct{}
	progress        []*ProgressCounter

	haltOnEncodingError bool
	halt                chan struct{}
	haltOnce            sync.Once

	wg       sync.WaitGroup
	mu       sync.Mutex
	firstErr error
	failed   int
}

// NewThrottledBatchExecutor 创建执行器，默认并发上限为 DefaultMaxDegreeOfParallelism
func NewThrottledBatchExecutor(processor BatchProcessor) *ThrottledBatchExecutor {
	return &ThrottledBatchExecutor{
		processor:       processor,
		metricsReporter: NewNoopMetricsReporter(),
		logger:          zerolog.Nop(),
		semaphore:       make(chan struct{}, DefaultMaxDegreeOfParallelism),
		halt:            make(chan struct{}),
	}
}

// WithConcurrencyLimit 设置并发上限（limit < 1 时按 1 处理）
// 必须在第一次 Submit 之前调用
func (e *ThrottledBatchExecutor) WithConcurrencyLimit(limit int) *ThrottledBatchExecutor {
	if limit < 1 {
		limit = 1
	}
	e.semaphore = make(chan struct{}, limit)
	e.metricsReporter.SetConcurrency(limit)
	return e
}

// WithMetricsReporter 设置指标报告器
func (e *ThrottledBatchExecutor) WithMetricsReporter(metricsReporter MetricsReporter) *ThrottledBatchExecutor {
	if metricsReporter == nil {
		metricsReporter = NewNoopMetricsReporter()
	}
	e.metricsReporter = metricsReporter
	// 注入 reporter 后，立即上报一次当前并发度
	e.metricsReporter.SetConcurrency(cap(e.semaphore))
	return e
}

// WithLogger 设置日志
func (e *ThrottledBatchExecutor) WithLogger(logger zerolog.Logger) *ThrottledBatchExecutor {
	e.logger = logger
	return e
}

// WithTable 设置指标与日志中使用的表名
func (e *ThrottledBatchExecutor) WithTable(table string) *ThrottledBatchExecutor {
	e.table = table
	return e
}

// WithProgress 批次成功后累加到这些计数器
func (e *ThrottledBatchExecutor) WithProgress(counters ...*ProgressCounter) *ThrottledBatchExecutor {
	for _, c := range counters {
		if c != nil {
			e.progress = append(e.progress, c)
		}
	}
	return e
}

// WithHaltOnEncodingError 编码失败后拒绝后续 Submit
func (e *ThrottledBatchExecutor) WithHaltOnEncodingError(halt bool) *ThrottledBatchExecutor {
	e.haltOnEncodingError = halt
	return e
}

// Limit 并发上限
func (e *ThrottledBatchExecutor) Limit() int {
	return cap(e.semaphore)
}

// Submit 占用槽位后启动批次；ctx 取消或执行器停止时返回错误且不启动批次
// 同一个执行器只允许一个调度循环调用 Submit
func (e *ThrottledBatchExecutor) Submit(ctx context.Context, batch Batch) error {
	if batch.Len() == 0 {
		return ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.halt:
		return errHalted
	default:
	}

	select {
	case e.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.halt:
		return errHalted
	}
	// 失败批次先 close(halt) 再释放槽位，拿到槽位后再确认一次
	select {
	case <-e.halt:
		<-e.semaphore
		return errHalted
	default:
	}

	e.wg.Add(1)
	go func() {
		defer func() {
			<-e.semaphore
			e.wg.Done()
		}()
		e.execute(ctx, batch)
	}()
	return nil
}

// Drain 等待全部批次结束
func (e *ThrottledBatchExecutor) Drain() error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstErr
}

// Failed 失败批次数
func (e *ThrottledBatchExecutor) Failed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

func (e *ThrottledBatchExecutor) execute(ctx context.Context, batch Batch) {
	startTime := time.Now()
	status := "success"
	// 在途批次 +1（整个批次生命周期内有效）
	e.metricsReporter.IncInflight()
	defer e.metricsReporter.DecInflight()

	var batchErr *BatchError
	payload, err := e.processor.EncodeBatch(ctx, batch)
	e.metricsReporter.ObserveEncodeDuration(e.table, time.Since(startTime))
	if err != nil {
		batchErr = &BatchError{Seq: batch.Seq, Rows: batch.Len(), Kind: ErrEncoding, Err: err}
	} else if err = e.processor.PushBatch(ctx, batch, payload); err != nil {
		batchErr = &BatchError{Seq: batch.Seq, Rows: batch.Len(), Kind: ErrTransport, Err: err}
	}

	if batchErr != nil {
		status = "fail"
		e.fail(batchErr)
	} else {
		for _, c := range e.progress {
			c.Add(int64(batch.Len()))
		}
		e.metricsReporter.AddRowsWritten(e.table, batch.Len())
	}

	e.metricsReporter.ObserveBatchSize(batch.Len())
	e.metricsReporter.ObserveExecuteDuration(e.table, batch.Len(), time.Since(startTime), status)
}

func (e *ThrottledBatchExecutor) fail(batchErr *BatchError) {
	kind := "transport"
	if batchErr.IsEncoding() {
		kind = "encode"
		if e.haltOnEncodingError {
			e.haltOnce.Do(func() { close(e.halt) })
		}
	}
	e.metricsReporter.IncError(e.table, kind)
	e.logger.Error().
		Err(batchErr.Err).
		Str("table", e.table).
		Int("seq", batchErr.Seq).
		Int("rows", batchErr.Rows).
		Str("kind", kind).
		Msg("batch failed")

	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed++
	if e.firstErr == nil {
		e.firstErr = batchErr
	}
}
