package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rushairer/bulkcopy"
)

const maxLineSize = 64 * 1024 * 1024

// JSONL 每行一个 JSON 数组或对象；数字保留为 json.Number
// 对象行按 Options.Columns 的顺序取值，缺失的键为 NULL
type JSONL struct {
	scanner *bufio.Scanner
	columns []string
	line    []byte
	lineNo  int
	err     error
}

// NewJSONL 创建 JSON Lines 数据源
func NewJSONL(r io.Reader, opts Options) *JSONL {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &JSONL{scanner: scanner, columns: opts.Columns}
}

func (s *JSONL) Next() bool {
	for s.scanner.Scan() {
		s.lineNo++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.line = line
		return true
	}
	s.err = s.scanner.Err()
	return false
}

func (s *JSONL) Values() (bulkcopy.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(s.line))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d: %w", s.lineNo, err)
	}
	switch x := v.(type) {
	case []any:
		return x, nil
	case map[string]any:
		if len(s.columns) == 0 {
			return nil, fmt.Errorf("line %d: object rows need a column list", s.lineNo)
		}
		row := make(bulkcopy.Row, len(s.columns))
		for i, name := range s.columns {
			row[i] = x[name]
		}
		return row, nil
	default:
		return nil, fmt.Errorf("line %d: expected array or object, got %T", s.lineNo, v)
	}
}

func (s *JSONL) Err() error {
	return s.err
}
