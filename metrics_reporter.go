package bulkcopy

import "time"

// MetricsReporter 性能监控报告器接口
type MetricsReporter interface {
	// ObserveBatchAssemble 从数据源攒满一个批次的耗时
	ObserveBatchAssemble(d time.Duration)

	// ObserveEncodeDuration 单批编码耗时
	ObserveEncodeDuration(table string, d time.Duration)

	// ObserveExecuteDuration 单批执行耗时（编码 + 发送），status 为 success/fail
	ObserveExecuteDuration(table string, n int, d time.Duration, status string)

	// ObserveBatchSize 批大小
	ObserveBatchSize(n int)

	// SetConcurrency 并发上限
	SetConcurrency(n int)

	// IncInflight / DecInflight 在途批次
	IncInflight()
	DecInflight()

	// IncError 错误计数，kind 为 encode/transport/schema 等
	IncError(table string, kind string)

	// AddRowsWritten 成功写入的行数
	AddRowsWritten(table string, n int)
}

// NoopMetricsReporter 默认的空实现
type NoopMetricsReporter struct{}

// NewNoopMetricsReporter 创建空报告器
func NewNoopMetricsReporter() *NoopMetricsReporter {
	return &NoopMetricsReporter{}
}

func (*NoopMetricsReporter) ObserveBatchAssemble(time.Duration) {}
func (*NoopMetricsReporter) ObserveEncodeDuration(string, time.Duration) {}
func (*NoopMetricsReporter) ObserveExecuteDuration(string, int, time.Duration, string) {}
func (*NoopMetricsReporter) ObserveBatchSize(int) {}
func (*NoopMetricsReporter) SetConcurrency(int) {}
func (*NoopMetricsReporter) IncInflight() {}
func (*NoopMetricsReporter) DecInflight() {}
func (*NoopMetricsReporter) IncError(string, string) {}
func (*NoopMetricsReporter) AddRowsWritten(string, int) {}

var _ MetricsReporter = (*NoopMetricsReporter)(nil)
