package source

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/rushairer/bulkcopy"
)

// CSV 逐条读取 CSV 记录，单元格保持字符串，由列编码器负责解析
type CSV struct {
	r          *csv.Reader
	nullMarker string
	skipHeader bool
	record     []string
	line       int
	err        error
}

// NewCSV 创建 CSV 数据源
func NewCSV(r io.Reader, opts Options) *CSV {
	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.FieldsPerRecord = -1
	return &CSV{r: cr, nullMarker: opts.NullMarker, skipHeader: opts.SkipHeader}
}

func (s *CSV) Next() bool {
	if s.err != nil {
		return false
	}
	for {
		record, err := s.r.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return false
		}
		s.line++
		if s.skipHeader && s.line == 1 {
			continue
		}
		s.record = record
		return true
	}
}

func (s *CSV) Values() (bulkcopy.Row, error) {
	row := make(bulkcopy.Row, len(s.record))
	for i, cell := range s.record {
		row[i] = nullable(cell, s.nullMarker)
	}
	return row, nil
}

func (s *CSV) Err() error {
	return s.err
}
