package bulkcopy

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushairer/bulkcopy/rowbinary"
)

// SessionState LoadSession 状态
type SessionState int32

const (
	StateCreated SessionState = iota
	StateSchemaResolved
	StateDispatching
	StateDraining
	StateCompleted
	StateFailed
)

// String returns the string representation of SessionState
func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSchemaResolved:
		return "schema_resolved"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal 是否为终态
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// LoadSession 一次加载调用的生命周期，只能运行一次
//
//	Created -> SchemaResolved -> Dispatching -> Draining -> Completed
//	任一非终态都可能 -> Failed
type LoadSession struct {
	config          Config
	resolver        SchemaResolver
	transport       Transport
	metricsReporter MetricsReporter
	logger          zerolog.Logger
	total           *ProgressCounter

	progress ProgressCounter
	columns  []rowbinary.Column
	batches  atomic.Int64
	state    atomic.Int32
	started  atomic.Bool
}

// State 当前状态
func (s *LoadSession) State() SessionState {
	return SessionState(s.state.Load())
}

// Config 会话创建时的配置快照
func (s *LoadSession) Config() Config {
	return s.config
}

// Columns 已解析的列；SchemaResolved 之前为空
func (s *LoadSession) Columns() []rowbinary.Column {
	if s.State() == StateCreated {
		return nil
	}
	return s.columns
}

// RowsWritten 本次加载已成功写入的行数
func (s *LoadSession) RowsWritten() int64 {
	return s.progress.Value()
}

// Batches 已提交的批次数
func (s *LoadSession) Batches() int64 {
	return s.batches.Load()
}

// Run 执行加载，返回本次成功写入的行数
func (s *LoadSession) Run(ctx context.Context, rows iter.Seq[Row]) (int64, error) {
	if !s.started.CompareAndSwap(false, true) {
		return 0, ErrSessionUsed
	}
	if rows == nil {
		s.setState(StateFailed)
		return 0, fmt.Errorf("%w: rows cannot be nil", ErrConfiguration)
	}
	return s.run(ctx, rows, nil)
}

// RunSource 以 RowSource 为输入执行加载
func (s *LoadSession) RunSource(ctx context.Context, src RowSource) (int64, error) {
	if !s.started.CompareAndSwap(false, true) {
		return 0, ErrSessionUsed
	}
	if src == nil {
		s.setState(StateFailed)
		return 0, fmt.Errorf("%w: row source cannot be nil", ErrConfiguration)
	}
	var srcErr error
	return s.run(ctx, sourceRows(src, &srcErr), func() error { return srcErr })
}

func (s *LoadSession) run(ctx context.Context, rows iter.Seq[Row], sourceErr func() error) (int64, error) {
	startTime := time.Now()
	if err := s.preflight(); err != nil {
		s.setState(StateFailed)
		return 0, err
	}
	table := s.config.DestinationTable
	log := s.logger.With().Str("table", table).Logger()

	columns, err := s.resolver.ResolveSchema(ctx, table)
	if err == nil && len(columns) == 0 {
		err = errors.New("table has no columns")
	}
	if err != nil {
		s.setState(StateFailed)
		s.metricsReporter.IncError(table, "schema")
		log.Error().Err(err).Msg("schema resolution failed")
		return 0, fmt.Errorf("%w: table %s: %w", ErrSchemaResolution, table, err)
	}
	s.columns = columns
	s.setState(StateSchemaResolved)
	log.Debug().Int("columns", len(columns)).Msg("schema resolved")

	processor := NewRowBinaryBatchProcessor(s.transport, NewBatchEncoder(s.config.BufferCapacity), table, columns)
	executor := NewThrottledBatchExecutor(processor).
		WithConcurrencyLimit(s.config.MaxDegreeOfParallelism).
		WithMetricsReporter(s.metricsReporter).
		WithLogger(log).
		WithTable(table).
		WithProgress(&s.progress, s.total).
		WithHaltOnEncodingError(true)

	s.setState(StateDispatching)
	var dispatchErr error
	assembleStart := time.Now()
	for batch := range Chunk(rows, s.config.BatchSize) {
		s.metricsReporter.ObserveBatchAssemble(time.Since(assembleStart))
		if sourceErr != nil && sourceErr() != nil {
			break
		}
		if err := executor.Submit(ctx, batch); err != nil {
			dispatchErr = err
			break
		}
		s.batches.Add(1)
		assembleStart = time.Now()
	}

	s.setState(StateDraining)
	err = executor.Drain()
	if err == nil && dispatchErr != nil && !errors.Is(dispatchErr, errHalted) {
		err = fmt.Errorf("load cancelled: %w", dispatchErr)
	}
	if err == nil && sourceErr != nil {
		err = sourceErr()
	}

	written := s.progress.Value()
	if err != nil {
		s.setState(StateFailed)
		log.Error().
			Err(err).
			Int64("rows", written).
			Int64("batches", s.batches.Load()).
			Int("failed_batches", executor.Failed()).
			Msg("bulk copy failed")
		return written, err
	}

	s.setState(StateCompleted)
	log.Info().
		Int64("rows", written).
		Int64("batches", s.batches.Load()).
		Dur("elapsed", time.Since(startTime)).
		Msg("bulk copy completed")
	return written, nil
}

func (s *LoadSession) preflight() error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.resolver == nil {
		return fmt.Errorf("%w: schema resolver cannot be nil", ErrConfiguration)
	}
	if s.transport == nil {
		return fmt.Errorf("%w: transport cannot be nil", ErrConfiguration)
	}
	return nil
}

func (s *LoadSession) setState(to SessionState) {
	from := SessionState(s.state.Swap(int32(to)))
	s.logger.Debug().
		Str("table", s.config.DestinationTable).
		Stringer("from", from).
		Stringer("to", to).
		Msg("load session state changed")
}
