package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/model"
	"storefront/internal/queue"
	rediskey "storefront/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	onceScope = "notify"
	onceTTL   = 7 * 24 * time.Hour
)

type message struct {
	subject  string
	headline string
}

var messages = map[queue.EventType]message{
	queue.EventOrderPaymentConfirmed: {"Payment received", "We received your payment and your order is confirmed."},
	queue.EventReturnApproved:        {"Return approved", "Your return request has been approved."},
	queue.EventReturnRejected:        {"Return rejected", "Your return request has been rejected."},
	queue.EventReturnCompleted:       {"Refund completed", "Your return is complete and the refund has been issued."},
}

// Dispatcher 消费订单事件并发送通知，同一 event_id 最多发送一次。
type Dispatcher struct {
	db       *gorm.DB
	rdb      *rd.Client
	notifier *Notifier
	log      *zap.Logger
}

func NewDispatcher(db *gorm.DB, rdb *rd.Client, notifier *Notifier, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{db: db, rdb: rdb, notifier: notifier, log: log.With(zap.String("component", "notify"))}
}

func (d *Dispatcher) Handle(ctx context.Context, e queue.OrderEvent) error {
	if e.Type == queue.EventPaymentIntentOrphaned {
		d.log.Warn("orphaned payment intent needs reconciliation",
			zap.String("gateway_order_id", e.OrderID),
			zap.String("customer_id", e.CustomerID),
			zap.String("amount", e.Amount))
		return nil
	}
	msg, ok := messages[e.Type]
	if !ok {
		return nil
	}

	first, err := rediskey.MarkOnce(ctx, d.rdb, onceScope, e.EventID, onceTTL)
	if err != nil {
		return fmt.Errorf("mark once: %w", err)
	}
	if !first {
		d.log.Debug("duplicate event skipped", zap.String("event_id", e.EventID))
		return nil
	}

	if err := d.deliver(ctx, e, msg); err != nil {
		if uerr := rediskey.UnmarkOnce(context.WithoutCancel(ctx), d.rdb, onceScope, e.EventID); uerr != nil {
			d.log.Warn("unmark once", zap.String("event_id", e.EventID), zap.Error(uerr))
		}
		return err
	}
	d.log.Info("notification sent", zap.String("event_id", e.EventID), zap.String("type", string(e.Type)))
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, e queue.OrderEvent, msg message) error {
	var u model.User
	err := d.db.WithContext(ctx).Where("id = ?", e.CustomerID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d.log.Warn("notification recipient missing", zap.String("customer_id", e.CustomerID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	return d.notifier.SendOrderUpdate(ctx, &u, msg.subject, msg.headline, e.OrderID, e.Amount)
}
