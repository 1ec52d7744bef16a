package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType 订单领域事件类型。
type EventType string

const (
	EventOrderCreated          EventType = "order.created"
	EventOrderStatusChanged    EventType = "order.status_changed"
	EventOrderPaymentConfirmed EventType = "order.payment_confirmed"
	EventOrderPaymentFailed    EventType = "order.payment_failed"
	EventReturnRequested       EventType = "return.requested"
	EventReturnApproved        EventType = "return.approved"
	EventReturnRejected        EventType = "return.rejected"
	EventReturnCompleted       EventType = "return.completed"
	EventReturnCancelled       EventType = "return.cancelled"
	EventPaymentIntentOrphaned EventType = "payment.intent_orphaned"
)

var knownEventTypes = map[EventType]struct{}{
	EventOrderCreated: {}, EventOrderStatusChanged: {}, EventOrderPaymentConfirmed: {},
	EventOrderPaymentFailed: {}, EventReturnRequested: {}, EventReturnApproved: {},
	EventReturnRejected: {}, EventReturnCompleted: {}, EventReturnCancelled: {},
	EventPaymentIntentOrphaned: {},
}

// OrderEvent 是写入 Redis Stream、再由 Relay 转发到 Kafka 的订单事件。
// Amount 为十进制字符串，避免浮点误差。
type OrderEvent struct {
	EventID      string    `json:"event_id"`
	Type         EventType `json:"type"`
	OrderID      string    `json:"order_id"`
	CustomerID   string    `json:"customer_id"`
	Status       string    `json:"status"`
	ReturnStatus string    `json:"return_status,omitempty"`
	Amount       string    `json:"amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewOrderEvent 分配 event_id 与发生时间。
func NewOrderEvent(typ EventType, orderID, customerID string) OrderEvent {
	return OrderEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		OrderID:    orderID,
		CustomerID: customerID,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e OrderEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if _, ok := knownEventTypes[e.Type]; !ok {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// streamValues 展平为 XADD 字段。
func (e OrderEvent) streamValues() map[string]interface{} {
	return map[string]interface{}{
		"event_id":      e.EventID,
		"type":          string(e.Type),
		"order_id":      e.OrderID,
		"customer_id":   e.CustomerID,
		"status":        e.Status,
		"return_status": e.ReturnStatus,
		"amount":        e.Amount,
		"occurred_at":   e.OccurredAt.Format(time.RFC3339Nano),
	}
}

func parseOrderEvent(values map[string]interface{}) (OrderEvent, error) {
	var (
		e   OrderEvent
		err error
	)
	if e.EventID, err = getStreamString(values, "event_id"); err != nil {
		return OrderEvent{}, err
	}
	typ, err := getStreamString(values, "type")
	if err != nil {
		return OrderEvent{}, err
	}
	e.Type = EventType(typ)
	if e.OrderID, err = getStreamString(values, "order_id"); err != nil {
		return OrderEvent{}, err
	}
	occurred, err := getStreamString(values, "occurred_at")
	if err != nil {
		return OrderEvent{}, err
	}
	if e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid occurred_at %q", occurred)
	}
	// 可选字段
	e.CustomerID, _ = getStreamString(values, "customer_id")
	e.Status, _ = getStreamString(values, "status")
	e.ReturnStatus, _ = getStreamString(values, "return_status")
	e.Amount, _ = getStreamString(values, "amount")

	if err := e.Validate(); err != nil {
		return OrderEvent{}, err
	}
	return e, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
