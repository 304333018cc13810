package clickhouse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression 请求体压缩方式
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseCompression 解析压缩方式，空字符串视为 none
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", s)
	}
}

type compressor struct {
	kind Compression
	zstd *zstd.Encoder
}

func newCompressor(kind Compression) (*compressor, error) {
	kind, err := ParseCompression(string(kind))
	if err != nil {
		return nil, err
	}
	c := &compressor{kind: kind}
	if kind == CompressionZstd {
		// EncodeAll 可并发调用
		c.zstd, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
	}
	return c, nil
}

// compress 返回请求体与 Content-Encoding（不压缩时为空）
func (c *compressor) compress(payload []byte) ([]byte, string, error) {
	switch c.kind {
	case CompressionZstd:
		return c.zstd.EncodeAll(payload, make([]byte, 0, len(payload)/2)), "zstd", nil
	case CompressionGzip:
		var buf bytes.Buffer
		buf.Grow(len(payload) / 2)
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return nil, "", err
		}
		if _, err := zw.Write(payload); err != nil {
			return nil, "", fmt.Errorf("gzip: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, "", fmt.Errorf("gzip: %w", err)
		}
		return buf.Bytes(), "gzip", nil
	default:
		return payload, "", nil
	}
}

func (c *compressor) close() error {
	if c.zstd != nil {
		return c.zstd.Close()
	}
	return nil
}
