package bulkcopy

import "iter"

// Chunk 将行序列按 size 切分为批次；惰性拉取，批次顺序与数据源一致，最后一批可能不足 size
// 每个批次持有独立的切片，可以安全地交给其它 goroutine
func Chunk(rows iter.Seq[Row], size int) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		if rows == nil || size < 1 {
			return
		}
		seq := 0
		buf := make([]Row, 0, size)
		for row := range rows {
			buf = append(buf, row)
			if len(buf) < size {
				continue
			}
			if !yield(Batch{Seq: seq, Rows: buf}) {
				return
			}
			seq++
			buf = make([]Row, 0, size)
		}
		if len(buf) > 0 {
			yield(Batch{Seq: seq, Rows: buf})
		}
	}
}

// SliceRows 把内存中的行切片包装成行序列
func SliceRows(rows []Row) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for _, row := range rows {
			if !yield(row) {
				return
			}
		}
	}
}
