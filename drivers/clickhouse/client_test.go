package clickhouse_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushairer/bulkcopy"
	"github.com/rushairer/bulkcopy/drivers/clickhouse"
	"github.com/rushairer/bulkcopy/rowbinary"
)

type received struct {
	Query    string
	Params   map[string]string
	Headers  http.Header
	Encoding string
	Body     []byte
}

// fakeServer 模拟 ClickHouse HTTP 接口
type fakeServer struct {
	mu       sync.Mutex
	inserts  []received
	tables   map[string][][2]string // table -> [name, type]
	failCode int
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fs := &fakeServer{tables: map[string][][2]string{}}

	router := gin.New()
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "Ok.\n")
	})
	router.POST("/", fs.handle)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) handle(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	encoding := c.GetHeader("Content-Encoding")
	body, err := decode(encoding, raw)
	if err != nil {
		c.String(http.StatusBadRequest, "Code: 432. DB::Exception: bad compression: %v", err)
		return
	}

	query := c.Query("query")
	if query == "" {
		query = string(body)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.failCode != 0 {
		c.Header("X-ClickHouse-Exception-Code", "241")
		c.String(fs.failCode, "Code: 241. DB::Exception: Memory limit exceeded. (MEMORY_LIMIT_EXCEEDED)")
		return
	}

	if strings.HasPrefix(query, "SELECT * FROM ") {
		table := strings.Fields(strings.TrimPrefix(query, "SELECT * FROM "))[0]
		cols, ok := fs.tables[table]
		if !ok {
			c.String(http.StatusNotFound, "Code: 60. DB::Exception: Table %s does not exist. (UNKNOWN_TABLE)", table)
			return
		}
		w := rowbinary.NewWriter(256)
		w.WriteUVarInt(uint64(len(cols)))
		for _, col := range cols {
			w.WriteString(col[0])
		}
		for _, col := range cols {
			w.WriteString(col[1])
		}
		c.Data(http.StatusOK, "application/octet-stream", w.Bytes())
		return
	}

	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		params[k] = v[0]
	}
	fs.inserts = append(fs.inserts, received{
		Query:    query,
		Params:   params,
		Headers:  c.Request.Header.Clone(),
		Encoding: encoding,
		Body:     body,
	})
	c.Status(http.StatusOK)
}

func (fs *fakeServer) snapshot() []received {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]received(nil), fs.inserts...)
}

func decode(encoding string, raw []byte) ([]byte, error) {
	switch encoding {
	case "":
		return raw, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zstd":
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return zr.DecodeAll(raw, nil)
	default:
		return nil, errors.New("unknown encoding " + encoding)
	}
}

func newClient(t *testing.T, endpoint string, opts clickhouse.Options) *clickhouse.Client {
	t.Helper()
	opts.Endpoint = endpoint
	client, err := clickhouse.NewClient(opts)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient_InvalidOptions(t *testing.T) {
	_, err := clickhouse.NewClient(clickhouse.Options{Endpoint: "ftp://example.com"})
	require.Error(t, err)

	_, err = clickhouse.NewClient(clickhouse.Options{Compression: "lz4"})
	require.Error(t, err)

	for _, key := range []string{"query", "insert_deduplication_token"} {
		_, err = clickhouse.NewClient(clickhouse.Options{Settings: map[string]string{key: "DROP TABLE events"}})
		require.Error(t, err, key)
		assert.Contains(t, err.Error(), key)
	}

	client, err := clickhouse.NewClient(clickhouse.Options{})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestClient_Ping(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newClient(t, srv.URL, clickhouse.Options{})
	require.NoError(t, client.Ping(context.Background()))
}

func TestClient_PushHeadersAndSettings(t *testing.T) {
	fs, srv := newFakeServer(t)
	client := newClient(t, srv.URL, clickhouse.Options{
		Database:    "analytics",
		User:        "loader",
		Password:    "secret",
		Settings:    map[string]string{"async_insert": "1"},
		Deduplicate: true,
	})

	payload := []byte{1, 2, 3, 4}
	require.NoError(t, client.Push(context.Background(), "INSERT INTO events FORMAT RowBinary", payload))

	got := fs.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "INSERT INTO events FORMAT RowBinary", got[0].Query)
	assert.Equal(t, payload, got[0].Body)
	assert.Equal(t, "1", got[0].Params["async_insert"])
	assert.Equal(t, clickhouse.Checksum(payload), got[0].Params["insert_deduplication_token"])
	assert.Equal(t, "loader", got[0].Headers.Get("X-ClickHouse-User"))
	assert.Equal(t, "secret", got[0].Headers.Get("X-ClickHouse-Key"))
	assert.Equal(t, "analytics", got[0].Headers.Get("X-ClickHouse-Database"))
	assert.Empty(t, got[0].Encoding)
}

func TestClient_Exec(t *testing.T) {
	fs, srv := newFakeServer(t)
	client := newClient(t, srv.URL, clickhouse.Options{
		Database:    "analytics",
		Compression: clickhouse.CompressionZstd,
		Settings:    map[string]string{"mutations_sync": "1"},
	})
	assert.Equal(t, "analytics", client.Database())

	require.NoError(t, client.Exec(context.Background(), "TRUNCATE TABLE events"))

	got := fs.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "TRUNCATE TABLE events", got[0].Query)
	assert.NotContains(t, got[0].Params, "query")
	assert.Equal(t, "1", got[0].Params["mutations_sync"])
	assert.Equal(t, "analytics", got[0].Headers.Get("X-ClickHouse-Database"))
	// 语句不压缩
	assert.Empty(t, got[0].Encoding)

	fs.mu.Lock()
	fs.failCode = http.StatusInternalServerError
	fs.mu.Unlock()
	err := client.Exec(context.Background(), "TRUNCATE TABLE events")
	require.Error(t, err)
	assert.True(t, clickhouse.IsException(err, 241))
}

func TestClient_PushCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("rowbinary"), 1000)
	for _, comp := range []clickhouse.Compression{clickhouse.CompressionGzip, clickhouse.CompressionZstd} {
		t.Run(string(comp), func(t *testing.T) {
			fs, srv := newFakeServer(t)
			client := newClient(t, srv.URL, clickhouse.Options{Compression: comp})

			require.NoError(t, client.Push(context.Background(), "INSERT INTO t FORMAT RowBinary", payload))
			got := fs.snapshot()
			require.Len(t, got, 1)
			assert.Equal(t, string(comp), got[0].Encoding)
			assert.Equal(t, payload, got[0].Body)
		})
	}
}

func TestClient_PushServerError(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.failCode = http.StatusInternalServerError
	client := newClient(t, srv.URL, clickhouse.Options{})

	err := client.Push(context.Background(), "INSERT INTO t FORMAT RowBinary", []byte{1})
	var ex *clickhouse.Exception
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, http.StatusInternalServerError, ex.StatusCode)
	assert.Equal(t, 241, ex.Code)
	assert.Contains(t, ex.Message, "MEMORY_LIMIT_EXCEEDED")
	assert.True(t, clickhouse.IsException(err, 241))
}

func TestClient_PushHonoursContext(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()
	client := newClient(t, slow.URL, clickhouse.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Push(ctx, "INSERT INTO t FORMAT RowBinary", []byte{1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ResolveSchema(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.tables["events"] = [][2]string{
		{"id", "UInt64"},
		{"name", "LowCardinality(String)"},
		{"ts", "DateTime64(3, 'UTC')"},
		{"tags", "Array(Nullable(String))"},
	}
	client := newClient(t, srv.URL, clickhouse.Options{})

	columns, err := client.ResolveSchema(context.Background(), "events")
	require.NoError(t, err)
	require.Len(t, columns, 4)
	assert.Equal(t, "id", columns[0].Name)
	assert.Equal(t, "UInt64", columns[0].Type.Name())
	assert.Equal(t, "LowCardinality(String)", columns[1].Type.Name())
	assert.Equal(t, "DateTime64(3, 'UTC')", columns[2].Type.Name())
	assert.Equal(t, "Array(Nullable(String))", columns[3].Type.Name())
}

func TestClient_ResolveSchemaUnknownTable(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newClient(t, srv.URL, clickhouse.Options{})

	_, err := client.ResolveSchema(context.Background(), "missing")
	require.True(t, clickhouse.IsException(err, 60), "err = %v", err)

	_, err = client.ResolveSchema(context.Background(), " ")
	require.Error(t, err)
}

func TestClient_BulkCopyEndToEnd(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.tables["events"] = [][2]string{{"id", "UInt32"}, {"name", "String"}}
	client := newClient(t, srv.URL, clickhouse.Options{Compression: clickhouse.CompressionZstd})

	loader := bulkcopy.NewBulkCopyFromConnection(client).
		WithDestinationTable("events").
		WithBatchSize(2).
		WithConcurrencyLimit(2)
	defer loader.Close()

	rows := []bulkcopy.Row{{1, "a"}, {2, "b"}, {3, "c"}}
	n, err := loader.WriteRows(context.Background(), bulkcopy.SliceRows(rows))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	got := fs.snapshot()
	require.Len(t, got, 2)
	total := 0
	for _, r := range got {
		assert.Equal(t, "INSERT INTO events FORMAT RowBinary", r.Query)
		total += len(r.Body)
	}
	// 每行 4 字节 UInt32 + 1 字节长度 + 1 字节字符
	assert.Equal(t, 3*6, total)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]clickhouse.Compression{
		"":     clickhouse.CompressionNone,
		"none": clickhouse.CompressionNone,
		"GZIP": clickhouse.CompressionGzip,
		"zstd": clickhouse.CompressionZstd,
	} {
		got, err := clickhouse.ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := clickhouse.ParseCompression("brotli")
	require.Error(t, err)
}

func TestSchemaQuery(t *testing.T) {
	assert.Equal(t, "SELECT * FROM db.t LIMIT 0 FORMAT RowBinaryWithNamesAndTypes", clickhouse.SchemaQuery("db.t"))
}
