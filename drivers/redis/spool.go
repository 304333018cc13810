package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rushairer/bulkcopy/drivers/clickhouse"
)

// DefaultStream 默认的暂存流名
const DefaultStream = "bulkcopy:spool"

// ErrChecksum 暂存数据校验失败
var ErrChecksum = errors.New("spooled payload checksum mismatch")

const (
	fieldQuery    = "query"
	fieldPayload  = "payload"
	fieldChecksum = "checksum"
)

// Pusher 接收转发数据的传输层（与 bulkcopy.Transport 签名一致）
type Pusher interface {
	Push(ctx context.Context, query string, payload []byte) error
}

// Spool 以 Redis Stream 暂存批次的传输层
// 架构：ThrottledBatchExecutor -> Spool(XADD) ... Forward -> Pusher(ClickHouse)
//
// 用途：
// - 目标库暂时不可用时先落地批次，之后再由 Forward 重放
// - 每条记录携带语句、RowBinary 数据与 xxh3 校验和
type Spool struct {
	client *redis.Client
	stream string
	maxLen int64
	logger zerolog.Logger
}

// NewSpool 创建暂存传输层
func NewSpool(client *redis.Client, stream string) *Spool {
	if stream == "" {
		stream = DefaultStream
	}
	return &Spool{
		client: client,
		stream: stream,
		logger: zerolog.Nop(),
	}
}

// WithMaxLen 限制流的近似长度，0 表示不限制
func (s *Spool) WithMaxLen(n int64) *Spool {
	s.maxLen = n
	return s
}

// WithLogger 设置日志
func (s *Spool) WithLogger(logger zerolog.Logger) *Spool {
	s.logger = logger
	return s
}

// Stream 流名
func (s *Spool) Stream() string {
	return s.stream
}

// Push 追加一个批次
func (s *Spool) Push(ctx context.Context, query string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			fieldQuery:    query,
			fieldPayload:  payload,
			fieldChecksum: clickhouse.Checksum(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("spool %s: %w", s.stream, err)
	}
	return nil
}

// Len 尚未转发的批次数
func (s *Spool) Len(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, s.stream).Result()
}

// Forward 按写入顺序把暂存批次发送到 target，成功后删除
// 每轮读取 count 条，直到流为空；返回转发的批次数
// 校验失败或发送失败时停止，失败的记录保留在流中
func (s *Spool) Forward(ctx context.Context, target Pusher, count int64) (int, error) {
	if count < 1 {
		count = 100
	}
	forwarded := 0
	for {
		if err := ctx.Err(); err != nil {
			return forwarded, err
		}
		msgs, err := s.client.XRangeN(ctx, s.stream, "-", "+", count).Result()
		if err != nil {
			return forwarded, fmt.Errorf("read spool %s: %w", s.stream, err)
		}
		if len(msgs) == 0 {
			return forwarded, nil
		}

		done := make([]string, 0, len(msgs))
		var pushErr error
		for _, msg := range msgs {
			query, payload, err := decodeEntry(msg)
			if err == nil {
				err = target.Push(ctx, query, payload)
			}
			if err != nil {
				pushErr = fmt.Errorf("entry %s: %w", msg.ID, err)
				break
			}
			done = append(done, msg.ID)
		}

		if len(done) > 0 {
			if err := s.client.XDel(ctx, s.stream, done...).Err(); err != nil {
				return forwarded, errors.Join(pushErr, fmt.Errorf("ack spool %s: %w", s.stream, err))
			}
			forwarded += len(done)
			s.logger.Debug().Str("stream", s.stream).Int("entries", len(done)).Msg("spool forwarded")
		}
		if pushErr != nil {
			return forwarded, pushErr
		}
	}
}

func decodeEntry(msg redis.XMessage) (string, []byte, error) {
	query, _ := msg.Values[fieldQuery].(string)
	payload, _ := msg.Values[fieldPayload].(string)
	sum, _ := msg.Values[fieldChecksum].(string)
	if query == "" {
		return "", nil, fmt.Errorf("missing %s field", fieldQuery)
	}
	if clickhouse.Checksum([]byte(payload)) != sum {
		return "", nil, ErrChecksum
	}
	return query, []byte(payload), nil
}
