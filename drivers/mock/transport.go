package mock

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Push 一次发送记录
type Push struct {
	Query   string
	Payload []byte
}

// Transport 模拟传输层（用于测试）：记录每次发送，可注入失败与延迟，并统计峰值并发
type Transport struct {
	mu     sync.Mutex
	pushes []Push
	closed bool

	failOn func(call int, query string, payload []byte) error
	delay  time.Duration

	calls       atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

// NewTransport 创建模拟传输层
func NewTransport() *Transport {
	return &Transport{}
}

// WithFailOn 按调用序号（从 0 开始）决定是否失败；必须在使用前设置
func (t *Transport) WithFailOn(fn func(call int, query string, payload []byte) error) *Transport {
	t.failOn = fn
	return t
}

// WithDelay 每次发送的模拟耗时
func (t *Transport) WithDelay(d time.Duration) *Transport {
	t.delay = d
	return t
}

// Push 记录发送；ctx 取消时立即返回 ctx.Err()
func (t *Transport) Push(ctx context.Context, query string, payload []byte) error {
	call := int(t.calls.Add(1) - 1)
	n := t.inflight.Add(1)
	defer t.inflight.Add(-1)
	for {
		peak := t.maxInflight.Load()
		if n <= peak || t.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	if t.delay > 0 {
		timer := time.NewTimer(t.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if t.failOn != nil {
		if err := t.failOn(call, query, payload); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pushes = append(t.pushes, Push{Query: query, Payload: bytes.Clone(payload)})
	return nil
}

// SnapshotPushes 成功的发送记录（按完成顺序）
func (t *Transport) SnapshotPushes() []Push {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Push, len(t.pushes))
	copy(out, t.pushes)
	return out
}

// Calls Push 被调用的总次数（含失败）
func (t *Transport) Calls() int {
	return int(t.calls.Load())
}

// MaxInflight 同时进行中的 Push 峰值
func (t *Transport) MaxInflight() int {
	return int(t.maxInflight.Load())
}

// Close 标记关闭
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed 是否已关闭
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
