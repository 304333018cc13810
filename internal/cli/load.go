package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rushairer/bulkcopy"
	"github.com/rushairer/bulkcopy/drivers/clickhouse"
	"github.com/rushairer/bulkcopy/internal/source"
	"github.com/rushairer/bulkcopy/monitoring"
)

type loadFlags struct {
	file        string
	table       string
	format      string
	batchSize   int
	concurrency int
	skipHeader  bool
	delimiter   string
	nullMarker  string
	sheet       string
	columns     []string
	compression string
	schemaDSN   string
	spool       bool
	truncate    bool
	metricsPort int
}

func newLoadCommand(a *app) *cobra.Command {
	var f loadFlags
	cmd := &cobra.Command{
		Use:   "load --file FILE --table TABLE",
		Short: "Load a CSV, JSON Lines or XLSX file into a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runLoad(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "", "Input file (.csv, .tsv, .jsonl, .xlsx)")
	fl.StringVarP(&f.table, "table", "t", "", "Destination table")
	fl.StringVar(&f.format, "format", "", "Input format, detected from the extension when empty")
	fl.IntVar(&f.batchSize, "batch-size", 0, "Rows per batch (default 50000)")
	fl.IntVar(&f.concurrency, "concurrency", 0, "Maximum batches in flight (default 4)")
	fl.BoolVar(&f.skipHeader, "skip-header", false, "Skip the first row of CSV/XLSX input")
	fl.StringVar(&f.delimiter, "delimiter", "", "CSV field delimiter")
	fl.StringVar(&f.nullMarker, "null", "", `Cell value treated as NULL, e.g. \N`)
	fl.StringVar(&f.sheet, "sheet", "", "XLSX sheet (default first sheet)")
	fl.StringSliceVar(&f.columns, "columns", nil, "Key order for JSON object rows")
	fl.StringVar(&f.compression, "compression", "", "Request compression: none, gzip, zstd")
	fl.StringVar(&f.schemaDSN, "schema-dsn", "", "Resolve the schema over database/sql (mysql://, postgres://, sqlite3://)")
	fl.BoolVar(&f.spool, "spool", false, "Append batches to the Redis spool instead of sending them")
	fl.BoolVar(&f.truncate, "truncate", false, "Truncate the destination table before loading")
	fl.IntVar(&f.metricsPort, "metrics-port", -1, "Serve /metrics on this port during the load (0 picks a free port)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) runLoad(cmd *cobra.Command, f loadFlags) error {
	ctx := cmd.Context()
	cfg := a.cfg.Load
	if f.table != "" {
		cfg.DestinationTable = f.table
	}
	if f.batchSize != 0 {
		cfg.BatchSize = f.batchSize
	}
	if f.concurrency != 0 {
		cfg.MaxDegreeOfParallelism = f.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.compression != "" {
		comp, err := clickhouse.ParseCompression(f.compression)
		if err != nil {
			return err
		}
		a.cfg.ClickHouse.Compression = comp
	}

	opts := source.Options{
		Format:     f.format,
		SkipHeader: f.skipHeader,
		NullMarker: f.nullMarker,
		Sheet:      f.sheet,
		Columns:    f.columns,
	}
	if f.delimiter != "" {
		opts.Delimiter = []rune(f.delimiter)[0]
	}
	src, err := source.Open(f.file, opts)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.file, err)
	}
	defer src.Close()

	client, err := a.clickhouseClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var (
		transport bulkcopy.Transport      = client
		resolver  bulkcopy.SchemaResolver = client
	)
	if f.schemaDSN != "" {
		r, closeFn, err := sqlResolver(ctx, f.schemaDSN)
		if err != nil {
			return err
		}
		defer closeFn()
		resolver = r
	}
	if f.spool {
		if f.truncate {
			return fmt.Errorf("--truncate cannot be combined with --spool")
		}
		spool, redisClient := a.redisSpool()
		defer redisClient.Close()
		transport = spool
	}
	if f.truncate {
		if err := client.Exec(ctx, "TRUNCATE TABLE "+cfg.DestinationTable); err != nil {
			return fmt.Errorf("truncate %s: %w", cfg.DestinationTable, err)
		}
		a.logger.Info().
			Str("database", client.Database()).
			Str("table", cfg.DestinationTable).
			Msg("table truncated")
	}

	loader := bulkcopy.NewBulkCopyWithConfig(transport, resolver, cfg).WithLogger(a.logger)

	metricsEnabled, metricsPort := false, 0
	switch {
	case f.metricsPort >= 0:
		metricsEnabled, metricsPort = true, f.metricsPort
	case a.cfg.Metrics.Port > 0:
		metricsEnabled, metricsPort = true, a.cfg.Metrics.Port
	}
	var (
		metrics   *monitoring.Metrics
		metricsLn net.Listener
	)
	if metricsEnabled {
		metrics = monitoring.NewMetrics(monitoring.Options{Namespace: a.cfg.Metrics.Namespace, RuntimeCollectors: true})
		loader.WithMetricsReporter(monitoring.NewReporter(metrics))
		metricsLn, err = net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(metricsPort)))
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		a.logger.Info().Str("addr", metricsLn.Addr().String()).Msg("serving metrics")
	}

	g, gctx := errgroup.WithContext(ctx)
	loadCtx, loadDone := context.WithCancel(gctx)
	defer loadDone()
	if metricsLn != nil {
		server := monitoring.NewServer(metrics, metricsLn.Addr().String())
		g.Go(func() error {
			return server.Serve(loadCtx, metricsLn)
		})
	}

	startTime := time.Now()
	var written int64
	g.Go(func() error {
		defer loadDone()
		var err error
		written, err = loader.WriteFromSource(gctx, src)
		return err
	})
	err = g.Wait()

	elapsed := time.Since(startTime)
	fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s in %s\n", written, cfg.DestinationTable, elapsed.Round(time.Millisecond))
	return err
}
