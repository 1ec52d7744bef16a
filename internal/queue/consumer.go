package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler 处理一条订单事件。返回错误只记录日志，消息仍会提交 offset；
// 处理方需要自己保证幂等（见 notify.Dispatcher）。
type Handler interface {
	Handle(ctx context.Context, e OrderEvent) error
}

type HandlerFunc func(ctx context.Context, e OrderEvent) error

func (f HandlerFunc) Handle(ctx context.Context, e OrderEvent) error { return f(ctx, e) }

type Consumer struct {
	r       *kafka.Reader
	handler Handler
	log     *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, handler Handler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		handler: handler,
		log:     log.With(zap.String("component", "consumer"), zap.String("topic", topic)),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		if err := c.dispatch(ctx, m.Value); err != nil {
			c.log.Warn("handle event",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, value []byte) error {
	var e OrderEvent
	if err := json.Unmarshal(value, &e); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return c.handler.Handle(ctx, e)
}
