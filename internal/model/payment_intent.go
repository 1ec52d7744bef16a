package model

import (
	"time"
)

// PaymentIntentStatus 描述网关支付意图与本地订单的对应关系。
type PaymentIntentStatus int

const (
	PaymentIntentAttached PaymentIntentStatus = iota // 已随订单一起提交
	PaymentIntentOrphaned                            // 网关已创建，但本地事务回滚
	PaymentIntentStandalone                          // 客户端直接申请，未绑定订单
	PaymentIntentPaid                                // standalone 意图已验签付款
)

func (s PaymentIntentStatus) String() string {
	switch s {
	case PaymentIntentAttached:
		return "attached"
	case PaymentIntentOrphaned:
		return "orphaned"
	case PaymentIntentStandalone:
		return "standalone"
	case PaymentIntentPaid:
		return "paid"
	default:
		return "unknown"
	}
}

// PaymentIntent 记录每一次网关下单，用于对账。
type PaymentIntent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GatewayOrderID string `gorm:"size:64;uniqueIndex;not null" json:"gateway_order_id"`
	// OrderID 为本地订单号；孤儿意图记录的是回滚前预分配的订单号。
	OrderID     string              `gorm:"type:varchar(36);index" json:"order_id"`
	CustomerID  string              `gorm:"type:varchar(36);index" json:"customer_id"`
	AmountMinor int64               `gorm:"not null" json:"amount_minor"`
	Currency    string              `gorm:"size:8;not null" json:"currency"`
	Receipt     string              `gorm:"size:64" json:"receipt"`
	Status      PaymentIntentStatus `gorm:"not null;default:0;index" json:"status"`
	PaymentID   string              `gorm:"size:64" json:"payment_id,omitempty"`
	ErrorMsg    string              `gorm:"size:255" json:"error_msg"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }
