package source

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/rushairer/bulkcopy"
)

// XLSX 流式读取工作表的行
type XLSX struct {
	file       *excelize.File
	rows       *excelize.Rows
	nullMarker string
	skipHeader bool
	width      int
	line       int
	err        error
}

// OpenXLSX 打开工作簿；Sheet 为空时读取第一个工作表
func OpenXLSX(path string, opts Options) (*XLSX, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	return &XLSX{
		file:       f,
		rows:       rows,
		nullMarker: opts.NullMarker,
		skipHeader: opts.SkipHeader,
	}, nil
}

func (s *XLSX) Next() bool {
	for s.rows.Next() {
		s.line++
		if s.skipHeader && s.line == 1 {
			// 表头决定行宽，尾部空单元格会被 excelize 省略
			cols, err := s.rows.Columns()
			if err != nil {
				s.err = err
				return false
			}
			s.width = len(cols)
			continue
		}
		return true
	}
	s.err = s.rows.Error()
	return false
}

func (s *XLSX) Values() (bulkcopy.Row, error) {
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", s.line, err)
	}
	width := max(len(cols), s.width)
	row := make(bulkcopy.Row, width)
	for i := range row {
		cell := ""
		if i < len(cols) {
			cell = cols[i]
		}
		row[i] = nullable(cell, s.nullMarker)
	}
	return row, nil
}

func (s *XLSX) Err() error {
	return s.err
}

// Close 关闭行迭代器与工作簿
func (s *XLSX) Close() error {
	return errors.Join(s.rows.Close(), s.file.Close())
}
