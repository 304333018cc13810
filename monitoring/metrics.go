// Package monitoring 以 Prometheus 指标实现 bulkcopy.MetricsReporter，并提供 /metrics 服务
package monitoring

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options 配置项（可选）
type Options struct {
	Namespace   string            // 默认 "bulkcopy"
	Subsystem   string            // 可为空
	ConstLabels map[string]string // 追加到所有指标的常量标签，如 {"env":"prod"}

	// 直方图桶
	AssembleBuckets  []float64
	EncodeBuckets    []float64
	ExecuteBuckets   []float64
	BatchSizeBuckets []float64

	// 是否注册 Go 运行时与进程指标
	RuntimeCollectors bool
}

// Metrics 指标容器，使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	// Counter
	errorsTotal *prometheus.CounterVec
	rowsWritten *prometheus.CounterVec
	batches     *prometheus.CounterVec

	// Histogram
	assembleDuration prometheus.Histogram
	encodeDuration   *prometheus.HistogramVec
	executeDuration  *prometheus.HistogramVec
	batchSize        prometheus.Histogram

	// Gauge
	concurrency prometheus.Gauge
	inflight    prometheus.Gauge
}

// NewMetrics 创建并注册一套指标
func NewMetrics(opts Options) *Metrics {
	ns := opts.Namespace
	if ns == "" {
		ns = "bulkcopy"
	}
	ss := opts.Subsystem
	cl := opts.ConstLabels

	// 默认桶
	if len(opts.AssembleBuckets) == 0 {
		opts.AssembleBuckets = prometheus.ExponentialBuckets(0.0005, 2, 18) // 0.5ms ~ 65s
	}
	if len(opts.EncodeBuckets) == 0 {
		opts.EncodeBuckets = prometheus.ExponentialBuckets(0.0005, 2, 18)
	}
	if len(opts.ExecuteBuckets) == 0 {
		opts.ExecuteBuckets = prometheus.ExponentialBuckets(0.001, 2, 18)
	}
	if len(opts.BatchSizeBuckets) == 0 {
		opts.BatchSizeBuckets = prometheus.ExponentialBuckets(1, 4, 10) // 1 ~ 262144
	}

	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "errors_total",
				Help:        "Total number of errors by kind (schema, encode, transport)",
				ConstLabels: cl,
			},
			[]string{"table", "error_type"},
		),
		rowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "rows_written_total",
				Help:        "Rows committed by successful batches",
				ConstLabels: cl,
			},
			[]string{"table"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "batches_total",
				Help:        "Finished batches by status",
				ConstLabels: cl,
			},
			[]string{"table", "status"},
		),
		assembleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "batch_assemble_duration_seconds",
				Help:        "Time to pull a full batch from the row source",
				Buckets:     opts.AssembleBuckets,
				ConstLabels: cl,
			},
		),
		encodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "encode_duration_seconds",
				Help:        "RowBinary encode duration per batch",
				Buckets:     opts.EncodeBuckets,
				ConstLabels: cl,
			},
			[]string{"table"},
		),
		executeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "execute_duration_seconds",
				Help:        "Encode plus push duration per batch",
				Buckets:     opts.ExecuteBuckets,
				ConstLabels: cl,
			},
			[]string{"table", "status"},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "batch_size",
				Help:        "Batch size distribution",
				Buckets:     opts.BatchSizeBuckets,
				ConstLabels: cl,
			},
		),
		concurrency: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "executor_concurrency",
				Help:        "Configured ceiling on in-flight batches",
				ConstLabels: cl,
			},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   ss,
				Name:        "inflight_batches",
				Help:        "Current in-flight batch count",
				ConstLabels: cl,
			},
		),
	}

	reg.MustRegister(
		m.errorsTotal,
		m.rowsWritten,
		m.batches,
		m.assembleDuration,
		m.encodeDuration,
		m.executeDuration,
		m.batchSize,
		m.concurrency,
		m.inflight,
	)
	if opts.RuntimeCollectors {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return m
}

// Registry 底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 http.Handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: false})
}

// Router 返回挂载 /metrics 与 /health 的 gin 路由
func (m *Metrics) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})
	return router
}
