// Package source 把 CSV、JSON Lines 与 XLSX 文件适配为 bulkcopy.RowSource
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rushairer/bulkcopy"
)

// Options 文件读取选项
type Options struct {
	Format     string   // csv/tsv/jsonl/xlsx，为空时按扩展名判断
	SkipHeader bool     // 跳过第一行（csv/xlsx）
	Delimiter  rune     // csv 分隔符，默认 ','
	NullMarker string   // 等于该值的单元格视为 NULL，例如 \N
	Sheet      string   // xlsx 工作表，默认第一个
	Columns    []string // jsonl 对象行的列顺序
}

// Source 可关闭的行数据源
type Source interface {
	bulkcopy.RowSource
	io.Closer
}

// Open 按格式打开文件
func Open(path string, opts Options) (Source, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "xlsx":
		return OpenXLSX(path, opts)
	case "csv", "tsv", "jsonl", "ndjson", "json":
	default:
		return nil, fmt.Errorf("unsupported file format %q", format)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case "tsv":
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
		return withCloser(NewCSV(f, opts), f), nil
	case "csv":
		return withCloser(NewCSV(f, opts), f), nil
	default:
		return withCloser(NewJSONL(f, opts), f), nil
	}
}

type closingSource struct {
	bulkcopy.RowSource
	io.Closer
}

func withCloser(src bulkcopy.RowSource, c io.Closer) Source {
	return closingSource{RowSource: src, Closer: c}
}

func nullable(cell, marker string) any {
	if marker != "" && cell == marker {
		return nil
	}
	return cell
}
