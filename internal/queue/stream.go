package queue

import (
	"context"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

// Publisher 发布订单事件。订单服务在事务提交后调用，失败只记日志。
type Publisher interface {
	Publish(ctx context.Context, e OrderEvent) error
}

// StreamPublisher 把事件 XADD 到 Redis Stream（outbox），由 Relay 异步搬运到 Kafka。
type StreamPublisher struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(rdb *rd.Client, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream, maxLen: 100000}
}

func (p *StreamPublisher) Publish(ctx context.Context, e OrderEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	err := p.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: e.streamValues(),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
