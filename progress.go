package bulkcopy

import "sync/atomic"

// ProgressCounter 已成功写入的行数，可在加载进行中随时并发读取
type ProgressCounter struct {
	n atomic.Int64
}

// Add 累加，返回累加后的值
func (p *ProgressCounter) Add(n int64) int64 {
	return p.n.Add(n)
}

// Value 当前值
func (p *ProgressCounter) Value() int64 {
	return p.n.Load()
}
