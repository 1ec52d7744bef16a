package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderConfirmed       OrderStatus = "confirmed"
	OrderShipped         OrderStatus = "shipped"
	OrderDelivered       OrderStatus = "delivered"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRefunded        OrderStatus = "refunded"
	OrderReturnRequested OrderStatus = "return_requested"
	OrderReturnApproved  OrderStatus = "return_approved"
	OrderReturnRejected  OrderStatus = "return_rejected"
	OrderReturnCompleted OrderStatus = "return_completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// DefaultReturnWindowDays 是新订单的默认退货窗口。
const DefaultReturnWindowDays = 7

// OrderItem 是下单时的商品快照，Subtotal == Price * Quantity。
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type ShippingAddress struct {
	Address string `gorm:"size:255" json:"address" binding:"required" validate:"required"`
	Pincode string `gorm:"size:16" json:"pincode" binding:"required" validate:"required"`
	City    string `gorm:"size:64" json:"city" binding:"required" validate:"required"`
	State   string `gorm:"size:64" json:"state" binding:"required" validate:"required"`
	Country string `gorm:"size:64" json:"country" binding:"required" validate:"required"`
}

// PaymentInfo 记录网关侧的支付意图与回调签名。
type PaymentInfo struct {
	RazorpayOrderID   string        `gorm:"size:64;index" json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID string        `gorm:"size:64" json:"razorpay_payment_id,omitempty"`
	RazorpaySignature string        `gorm:"size:128" json:"razorpay_signature,omitempty"`
	Status            PaymentStatus `gorm:"size:16;not null;default:pending" json:"status"`
}

// Order 订单聚合。Items、ReturnRequest 以 JSON 内嵌存储，保持文档形态。
type Order struct {
	ID        string    `gorm:"type:varchar(36);primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID      string          `gorm:"type:varchar(36);not null;index:idx_orders_customer_status" json:"customer_id"`
	Items           []OrderItem     `gorm:"serializer:json;type:text;not null" json:"items"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	PaymentInfo     PaymentInfo     `gorm:"embedded;embeddedPrefix:payment_" json:"payment_info"`
	Status          OrderStatus     `gorm:"size:32;not null;default:pending;index:idx_orders_customer_status" json:"status"`
	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	ReturnRequest   *ReturnRequest  `gorm:"serializer:json;type:text" json:"return_request"`
	// ReturnStatus 冗余 ReturnRequest.RequestStatus，便于按退货状态检索。
	ReturnStatus     ReturnRequestStatus `gorm:"size:16;index" json:"-"`
	IsReturnable     bool                `gorm:"not null;default:true" json:"is_returnable"`
	ReturnWindowDays int                 `gorm:"not null;default:7" json:"return_window_days"`
	// DeliveredAt 只在状态进入 delivered 时写入，退货窗口以此为准。
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	// Version 乐观锁版本号，每次状态变更 +1。
	Version int64 `gorm:"not null;default:1" json:"version"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.SyncReturnStatus()
	return nil
}

// SyncReturnStatus 同步冗余的退货状态列，每次写库前调用。
func (o *Order) SyncReturnStatus() {
	if o.ReturnRequest == nil {
		o.ReturnStatus = ""
	} else {
		o.ReturnStatus = o.ReturnRequest.RequestStatus
	}
}

// DeliveryTime 返回退货窗口的起算时间；历史数据没有 DeliveredAt 时回退到 UpdatedAt。
func (o *Order) DeliveryTime() time.Time {
	if o.DeliveredAt != nil {
		return *o.DeliveredAt
	}
	return o.UpdatedAt
}

// HoldsStock 表示订单当前仍占用库存（未取消、未退款、未完成退货）。
func (o *Order) HoldsStock() bool {
	switch o.Status {
	case OrderCancelled, OrderRefunded, OrderReturnCompleted:
		return false
	}
	return true
}
