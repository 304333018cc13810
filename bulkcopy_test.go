package bulkcopy_test

import (
	"context"
	"encoding/binary"
	"errors"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushairer/bulkcopy"
	"github.com/rushairer/bulkcopy/drivers/mock"
	"github.com/rushairer/bulkcopy/rowbinary"
)

var idColumn = rowbinary.Column{Name: "id", Type: rowbinary.Int32}

func intRows(n int) []bulkcopy.Row {
	rows := make([]bulkcopy.Row, n)
	for i := range rows {
		rows[i] = bulkcopy.Row{int32(i)}
	}
	return rows
}

// decodeIDs 解析单列 Int32 的 RowBinary 数据
func decodeIDs(t *testing.T, payload []byte) []int32 {
	t.Helper()
	require.Zero(t, len(payload)%4, "payload length %d", len(payload))
	ids := make([]int32, 0, len(payload)/4)
	for i := 0; i < len(payload); i += 4 {
		ids = append(ids, int32(binary.LittleEndian.Uint32(payload[i:])))
	}
	return ids
}

func newLoader(transport *mock.Transport, resolver *mock.Resolver) *bulkcopy.BulkCopy {
	return bulkcopy.NewBulkCopy(transport, resolver).WithDestinationTable("events")
}

func TestDefaultConfig(t *testing.T) {
	cfg := bulkcopy.NewBulkCopy(nil, nil).Config()
	assert.Equal(t, 50000, cfg.BatchSize)
	assert.Equal(t, 4, cfg.MaxDegreeOfParallelism)
	assert.Equal(t, bulkcopy.DefaultBufferCapacity, cfg.BufferCapacity)
	assert.Empty(t, cfg.DestinationTable)
}

func TestWriteRows_SequentialConcatenationMatchesInput(t *testing.T) {
	transport := mock.NewTransport()
	resolver := mock.NewResolver(idColumn)
	loader := newLoader(transport, resolver).WithBatchSize(3).WithConcurrencyLimit(1)

	written, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(10)))
	require.NoError(t, err)
	assert.EqualValues(t, 10, written)

	pushes := transport.SnapshotPushes()
	require.Len(t, pushes, 4) // ceil(10/3)

	var all []int32
	for i, p := range pushes {
		assert.Equal(t, "INSERT INTO events FORMAT RowBinary", p.Query)
		ids := decodeIDs(t, p.Payload)
		if i < 3 {
			assert.Len(t, ids, 3)
		} else {
			assert.Len(t, ids, 1)
		}
		all = append(all, ids...)
	}
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)
}

func TestWriteRows_ParallelCoversEveryRowOnce(t *testing.T) {
	transport := mock.NewTransport().WithDelay(2 * time.Millisecond)
	loader := newLoader(transport, mock.NewResolver(idColumn)).WithBatchSize(7).WithConcurrencyLimit(4)

	written, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(100)))
	require.NoError(t, err)
	assert.EqualValues(t, 100, written)

	var all []int32
	for _, p := range transport.SnapshotPushes() {
		all = append(all, decodeIDs(t, p.Payload)...)
	}
	slices.Sort(all)
	want := make([]int32, 100)
	for i := range want {
		want[i] = int32(i)
	}
	assert.Equal(t, want, all)
	assert.Len(t, transport.SnapshotPushes(), 15)
}

func TestWriteRows_NeverExceedsConcurrencyLimit(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 8} {
		transport := mock.NewTransport().WithDelay(5 * time.Millisecond)
		loader := newLoader(transport, mock.NewResolver(idColumn)).WithBatchSize(1).WithConcurrencyLimit(limit)

		written, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(24)))
		require.NoError(t, err)
		assert.EqualValues(t, 24, written)
		assert.LessOrEqual(t, transport.MaxInflight(), limit, "limit %d", limit)
		assert.GreaterOrEqual(t, transport.MaxInflight(), 1)
	}
}

func TestWriteRows_FiveRowsTwoPerBatch(t *testing.T) {
	transport := mock.NewTransport()
	loader := newLoader(transport, mock.NewResolver(idColumn)).WithBatchSize(2).WithConcurrencyLimit(2)

	written, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(5)))
	require.NoError(t, err)
	assert.EqualValues(t, 5, written)

	sizes := make([]int, 0, 3)
	for _, p := range transport.SnapshotPushes() {
		sizes = append(sizes, len(p.Payload)/4)
	}
	slices.Sort(sizes)
	assert.Equal(t, []int{1, 2, 2}, sizes)
}

func TestWriteRows_ConfigurationErrorsSkipSchemaQuery(t *testing.T) {
	tests := []struct {
		name   string
		loader func(*mock.Transport, *mock.Resolver) *bulkcopy.BulkCopy
		rows   iter.Seq[bulkcopy.Row]
	}{
		{
			name: "empty table",
			loader: func(tr *mock.Transport, r *mock.Resolver) *bulkcopy.BulkCopy {
				return bulkcopy.NewBulkCopy(tr, r)
			},
			rows: bulkcopy.SliceRows(intRows(1)),
		},
		{
			name: "blank table",
			loader: func(tr *mock.Transport, r *mock.Resolver) *bulkcopy.BulkCopy {
				return bulkcopy.NewBulkCopy(tr, r).WithDestinationTable("   ")
			},
			rows: bulkcopy.SliceRows(intRows(1)),
		},
		{
			name: "zero batch size",
			loader: func(tr *mock.Transport, r *mock.Resolver) *bulkcopy.BulkCopy {
				return newLoader(tr, r).WithBatchSize(0)
			},
			rows: bulkcopy.SliceRows(intRows(1)),
		},
		{
			name: "zero concurrency",
			loader: func(tr *mock.Transport, r *mock.Resolver) *bulkcopy.BulkCopy {
				return newLoader(tr, r).WithConcurrencyLimit(0)
			},
			rows: bulkcopy.SliceRows(intRows(1)),
		},
		{
			name: "negative buffer",
			loader: func(tr *mock.Transport, r *mock.Resolver) *bulkcopy.BulkCopy {
				return newLoader(tr, r).WithBufferCapacity(-1)
			},
			rows: bulkcopy.SliceRows(intRows(1)),
		},
		{
			name:   "nil rows",
			loader: newLoader,
			rows:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := mock.NewTransport()
			resolver := mock.NewResolver(idColumn)

			written, err := tt.loader(transport, resolver).WriteRows(context.Background(), tt.rows)
			require.ErrorIs(t, err, bulkcopy.ErrConfiguration)
			assert.Zero(t, written)
			assert.Zero(t, resolver.Calls())
			assert.Zero(t, transport.Calls())
		})
	}
}

func TestWriteRows_MissingCollaborators(t *testing.T) {
	resolver := mock.NewResolver(idColumn)
	_, err := bulkcopy.NewBulkCopy(nil, resolver).WithDestinationTable("events").
		WriteRows(context.Background(), bulkcopy.SliceRows(intRows(1)))
	require.ErrorIs(t, err, bulkcopy.ErrConfiguration)
	assert.Zero(t, resolver.Calls())

	_, err = bulkcopy.NewBulkCopy(mock.NewTransport(), nil).WithDestinationTable("events").
		WriteRows(context.Background(), bulkcopy.SliceRows(intRows(1)))
	require.ErrorIs(t, err, bulkcopy.ErrConfiguration)
}

func TestWriteRows_OneOfThreeBatchesFails(t *testing.T) {
	boom := errors.New("connection reset")
	transport := mock.NewTransport().WithFailOn(func(_ int, _ string, payload []byte) error {
		if binary.LittleEndian.Uint32(payload) == 2 {
			return boom
		}
		return nil
	})
	loader := newLoader(transport, mock.NewResolver(idColumn)).WithBatchSize(2).WithConcurrencyLimit(3)

	written, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(6)))
	require.Error(t, err)
	assert.ErrorIs(t, err, bulkcopy.ErrTransport)
	assert.ErrorIs(t, err, boom)

	var batchErr *bulkcopy.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Seq)
	assert.Equal(t, 2, batchErr.Rows)
	assert.False(t, batchErr.IsEncoding())

	// 其它两个批次照常完成，进度不回滚
	assert.EqualValues(t, 4, written)
	assert.EqualValues(t, 4, loader.RowsWritten())
	assert.Equal(t, 3, transport.Calls())
}

func TestWriteRows_TransportFailureDoesNotStopDispatch(t *testing.T) {
	transport := mock.NewTransport().WithFailOn(func(call int, _ string, _ []byte) error {
		if call == 0 {
			return errors.New("first push fails")
		}
		return nil
	})
	loader := newLoader(transport, mock.NewResolver(idColumn)).WithBatchSize(1).WithConcurrencyLimit(1)

	written, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(5)))
	require.ErrorIs(t, err, bulkcopy.ErrTransport)
	assert.EqualValues(t, 4, written)
	assert.Equal(t, 5, transport.Calls())
}

func TestWriteRows_EncodingFailureHaltsDispatch(t *testing.T) {
	transport := mock.NewTransport()
	loader := newLoader(transport, mock.NewResolver(idColumn)).WithBatchSize(1).WithConcurrencyLimit(1)

	rows := intRows(10)
	rows[1] = bulkcopy.Row{int32(1), "extra"}

	written, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(rows))
	require.Error(t, err)
	assert.ErrorIs(t, err, bulkcopy.ErrEncoding)
	assert.ErrorIs(t, err, bulkcopy.ErrRowArity)

	var batchErr *bulkcopy.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Seq)
	assert.True(t, batchErr.IsEncoding())

	var rowErr *bulkcopy.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, -1, rowErr.Column)

	assert.EqualValues(t, 1, written)
	assert.Equal(t, 1, transport.Calls())
}

func TestWriteRows_InvalidValueReportsColumn(t *testing.T) {
	columns := []rowbinary.Column{idColumn, {Name: "name", Type: rowbinary.String}}
	loader := newLoader(mock.NewTransport(), mock.NewResolver(columns...)).WithBatchSize(10)

	_, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows([]bulkcopy.Row{
		{int32(1), "a"},
		{"not a number", "b"},
	}))
	require.ErrorIs(t, err, bulkcopy.ErrEncoding)
	require.ErrorIs(t, err, rowbinary.ErrInvalidValue)

	var rowErr *bulkcopy.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 1, rowErr.Row)
	assert.Equal(t, 0, rowErr.Column)
	assert.Equal(t, "id", rowErr.Name)
}

func TestWriteRows_EmptyInput(t *testing.T) {
	transport := mock.NewTransport()
	resolver := mock.NewResolver(idColumn)
	session := newLoader(transport, resolver).NewSession()

	written, err := session.Run(context.Background(), bulkcopy.SliceRows(nil))
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Zero(t, transport.Calls())
	assert.Zero(t, session.Batches())
	assert.Equal(t, 1, resolver.Calls())
	assert.Equal(t, bulkcopy.StateCompleted, session.State())
}

func TestWriteRows_SchemaResolvedOnce(t *testing.T) {
	resolver := mock.NewResolver(idColumn)
	loader := newLoader(mock.NewTransport(), resolver).WithBatchSize(2)

	_, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(11)))
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.Calls())
}

func TestWriteRows_SchemaResolutionFailure(t *testing.T) {
	cause := errors.New("table does not exist")
	transport := mock.NewTransport()
	session := newLoader(transport, mock.NewResolver().WithError(cause)).NewSession()

	written, err := session.Run(context.Background(), bulkcopy.SliceRows(intRows(3)))
	require.ErrorIs(t, err, bulkcopy.ErrSchemaResolution)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "events")
	assert.Zero(t, written)
	assert.Zero(t, transport.Calls())
	assert.Equal(t, bulkcopy.StateFailed, session.State())
	assert.Nil(t, session.Columns())
}

func TestWriteRows_NoColumnsIsSchemaFailure(t *testing.T) {
	_, err := newLoader(mock.NewTransport(), mock.NewResolver()).
		WriteRows(context.Background(), bulkcopy.SliceRows(intRows(1)))
	require.ErrorIs(t, err, bulkcopy.ErrSchemaResolution)
}

func TestWriteRows_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := mock.NewTransport()
	written, err := newLoader(transport, mock.NewResolver(idColumn)).
		WriteRows(ctx, bulkcopy.SliceRows(intRows(10)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, written)
	assert.Zero(t, transport.Calls())
}

func TestWriteRows_CancelStopsEndlessSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endless := func(yield func(bulkcopy.Row) bool) {
		for i := 0; ; i++ {
			if i == 50 {
				cancel()
			}
			if !yield(bulkcopy.Row{int32(i)}) {
				return
			}
		}
	}

	transport := mock.NewTransport().WithDelay(time.Millisecond)
	loader := newLoader(transport, mock.NewResolver(idColumn)).WithBatchSize(5).WithConcurrencyLimit(2)

	done := make(chan error, 1)
	go func() {
		_, err := loader.WriteRows(ctx, endless)
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not stop after cancellation")
	}
	assert.LessOrEqual(t, loader.RowsWritten(), int64(60))
}

func TestBulkCopy_RowsWrittenAccumulates(t *testing.T) {
	loader := newLoader(mock.NewTransport(), mock.NewResolver(idColumn)).WithBatchSize(4)

	n, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(9)))
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)

	n, err = loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(3)))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.EqualValues(t, 12, loader.RowsWritten())
}

func TestLoadSession_SingleUse(t *testing.T) {
	session := newLoader(mock.NewTransport(), mock.NewResolver(idColumn)).NewSession()
	assert.Equal(t, bulkcopy.StateCreated, session.State())

	_, err := session.Run(context.Background(), bulkcopy.SliceRows(intRows(2)))
	require.NoError(t, err)
	assert.Equal(t, bulkcopy.StateCompleted, session.State())
	assert.True(t, session.State().Terminal())
	assert.Equal(t, []rowbinary.Column{idColumn}, session.Columns())

	_, err = session.Run(context.Background(), bulkcopy.SliceRows(intRows(2)))
	require.ErrorIs(t, err, bulkcopy.ErrSessionUsed)
	_, err = session.RunSource(context.Background(), bulkcopy.NewSliceSource(nil))
	require.ErrorIs(t, err, bulkcopy.ErrSessionUsed)
	assert.EqualValues(t, 2, session.RowsWritten())
}

func TestLoadSession_ConfigSnapshot(t *testing.T) {
	loader := newLoader(mock.NewTransport(), mock.NewResolver(idColumn)).WithBatchSize(10)
	session := loader.NewSession()
	loader.WithBatchSize(1).WithDestinationTable("other")

	assert.Equal(t, 10, session.Config().BatchSize)
	assert.Equal(t, "events", session.Config().DestinationTable)

	_, err := session.Run(context.Background(), bulkcopy.SliceRows(intRows(25)))
	require.NoError(t, err)
	assert.EqualValues(t, 3, session.Batches())
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "created", bulkcopy.StateCreated.String())
	assert.Equal(t, "schema_resolved", bulkcopy.StateSchemaResolved.String())
	assert.Equal(t, "dispatching", bulkcopy.StateDispatching.String())
	assert.Equal(t, "draining", bulkcopy.StateDraining.String())
	assert.Equal(t, "completed", bulkcopy.StateCompleted.String())
	assert.Equal(t, "failed", bulkcopy.StateFailed.String())
	assert.Equal(t, "unknown", bulkcopy.SessionState(42).String())
	assert.False(t, bulkcopy.StateDraining.Terminal())
}

func TestBulkCopy_CloseOwnedConnection(t *testing.T) {
	conn := mock.NewConnection(idColumn)
	loader := bulkcopy.NewBulkCopyFromConnection(conn).WithDestinationTable("events")

	n, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(intRows(3)))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, loader.Close())
	require.NoError(t, loader.Close())
	assert.True(t, conn.Closed())
}

func TestBulkCopy_CloseBorrowedTransport(t *testing.T) {
	transport := mock.NewTransport()
	loader := newLoader(transport, mock.NewResolver(idColumn))
	require.NoError(t, loader.Close())
	assert.False(t, transport.Closed())
}
