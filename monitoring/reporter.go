package monitoring

import (
	"time"

	"github.com/rushairer/bulkcopy"
)

var _ bulkcopy.MetricsReporter = (*Reporter)(nil)

// Reporter 实现 bulkcopy.MetricsReporter，写入 Prometheus 指标
type Reporter struct {
	m *Metrics
}

// NewReporter 创建 Reporter；m 为 nil 时所有方法为空操作
func NewReporter(m *Metrics) *Reporter {
	return &Reporter{m: m}
}

// ObserveBatchAssemble 攒批耗时
func (r *Reporter) ObserveBatchAssemble(d time.Duration) {
	if r.m == nil {
		return
	}
	r.m.assembleDuration.Observe(d.Seconds())
}

// ObserveEncodeDuration 编码耗时
func (r *Reporter) ObserveEncodeDuration(table string, d time.Duration) {
	if r.m == nil {
		return
	}
	r.m.encodeDuration.WithLabelValues(table).Observe(d.Seconds())
}

// ObserveExecuteDuration 执行耗时，同时按状态计数批次
func (r *Reporter) ObserveExecuteDuration(table string, _ int, d time.Duration, status string) {
	if r.m == nil {
		return
	}
	r.m.executeDuration.WithLabelValues(table, status).Observe(d.Seconds())
	r.m.batches.WithLabelValues(table, status).Inc()
}

// ObserveBatchSize 批大小
func (r *Reporter) ObserveBatchSize(n int) {
	if r.m == nil {
		return
	}
	r.m.batchSize.Observe(float64(n))
}

// SetConcurrency 并发上限
func (r *Reporter) SetConcurrency(n int) {
	if r.m == nil {
		return
	}
	r.m.concurrency.Set(float64(n))
}

// IncInflight 在途+1
func (r *Reporter) IncInflight() {
	if r.m == nil {
		return
	}
	r.m.inflight.Inc()
}

// DecInflight 在途-1
func (r *Reporter) DecInflight() {
	if r.m == nil {
		return
	}
	r.m.inflight.Dec()
}

// IncError 错误计数
func (r *Reporter) IncError(table string, kind string) {
	if r.m == nil {
		return
	}
	r.m.errorsTotal.WithLabelValues(table, kind).Inc()
}

// AddRowsWritten 成功写入的行数
func (r *Reporter) AddRowsWritten(table string, n int) {
	if r.m == nil {
		return
	}
	r.m.rowsWritten.WithLabelValues(table).Add(float64(n))
}
