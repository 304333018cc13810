package clickhouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
)

// DefaultEndpoint ClickHouse HTTP 接口默认地址
const DefaultEndpoint = "http://localhost:8123"

// Options HTTP 客户端配置
type Options struct {
	Endpoint    string            `yaml:"endpoint"`
	Database    string            `yaml:"database"`
	User        string            `yaml:"user"`
	Password    string            `yaml:"password"`
	Compression Compression       `yaml:"compression"` // 请求体压缩：none/gzip/zstd
	Settings    map[string]string `yaml:"settings"`    // 以 URL 参数传递的服务端设置
	Deduplicate bool              `yaml:"deduplicate"` // 以数据哈希作为 insert_deduplication_token
	Timeout     time.Duration     `yaml:"timeout"`
}

// reservedSettings 由客户端自行设置的 URL 参数
var reservedSettings = []string{"query", "insert_deduplication_token", "database", "user", "password"}

// Client ClickHouse HTTP 客户端
// 同时实现 bulkcopy.Transport 与 bulkcopy.SchemaResolver，可并发使用
type Client struct {
	endpoint   *url.URL
	options    Options
	httpClient *http.Client
	compressor *compressor
	logger     zerolog.Logger
	closeOnce  sync.Once
	closeErr   error
}

// NewClient 创建客户端
func NewClient(options Options) (*Client, error) {
	if options.Endpoint == "" {
		options.Endpoint = DefaultEndpoint
	}
	endpoint, err := url.Parse(options.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", options.Endpoint, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", options.Endpoint)
	}
	for _, key := range reservedSettings {
		if _, ok := options.Settings[key]; ok {
			return nil, fmt.Errorf("setting %q is reserved", key)
		}
	}
	comp, err := newCompressor(options.Compression)
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint:   endpoint,
		options:    options,
		httpClient: &http.Client{Timeout: options.Timeout},
		compressor: comp,
		logger:     zerolog.Nop(),
	}, nil
}

// WithHTTPClient 替换底层 http.Client
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

// WithLogger 设置日志
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.logger = logger
	return c
}

// Database 当前数据库
func (c *Client) Database() string {
	return c.options.Database
}

// Push 发送一个批次：语句放在 query 参数中，payload 作为请求体
func (c *Client) Push(ctx context.Context, query string, payload []byte) error {
	params := url.Values{}
	params.Set("query", query)
	if c.options.Deduplicate {
		params.Set("insert_deduplication_token", Checksum(payload))
	}

	body, encoding, err := c.compressor.compress(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, params, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(body))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer drain(resp)
	if err := checkResponse(resp); err != nil {
		return err
	}
	c.logger.Debug().
		Int("bytes", len(payload)).
		Int("sent", len(body)).
		Dur("elapsed", time.Since(startTime)).
		Msg("batch pushed")
	return nil
}

// Ping 检查服务是否可用
func (c *Client) Ping(ctx context.Context) error {
	u := c.endpoint.JoinPath("ping")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer drain(resp)
	return checkResponse(resp)
}

// Exec 执行不返回数据的语句（DDL 等）
func (c *Client) Exec(ctx context.Context, query string) error {
	req, err := c.newRequest(ctx, url.Values{}, strings.NewReader(query))
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	defer drain(resp)
	return checkResponse(resp)
}

// Close 释放空闲连接与压缩器
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.httpClient.CloseIdleConnections()
		c.closeErr = c.compressor.close()
	})
	return c.closeErr
}

func (c *Client) newRequest(ctx context.Context, params url.Values, body io.Reader) (*http.Request, error) {
	for k, v := range c.options.Settings {
		params.Set(k, v)
	}
	u := *c.endpoint
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.options.User != "" {
		req.Header.Set("X-ClickHouse-User", c.options.User)
		req.Header.Set("X-ClickHouse-Key", c.options.Password)
	}
	if c.options.Database != "" {
		req.Header.Set("X-ClickHouse-Database", c.options.Database)
	}
	return req, nil
}

// Checksum 数据的 xxh3 十六进制摘要
func Checksum(payload []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(payload))
}

// Exception 服务端返回的错误
type Exception struct {
	StatusCode int
	Code       int
	Message    string
}

// Error implements the error interface
func (e *Exception) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("clickhouse: code %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("clickhouse: http %d: %s", e.StatusCode, e.Message)
}

// IsException 判断 err 是否为指定错误码的服务端错误
func IsException(err error, code int) bool {
	var ex *Exception
	return errors.As(err, &ex) && ex.Code == code
}

const maxErrorBody = 64 * 1024

func checkResponse(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ex := &Exception{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
	if code := resp.Header.Get("X-ClickHouse-Exception-Code"); code != "" {
		fmt.Sscanf(code, "%d", &ex.Code)
	} else {
		fmt.Sscanf(ex.Message, "Code: %d.", &ex.Code)
	}
	if ex.Message == "" {
		ex.Message = http.StatusText(resp.StatusCode)
	}
	return ex
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
