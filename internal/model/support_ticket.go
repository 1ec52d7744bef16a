package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TicketStatus string

const (
	TicketPending  TicketStatus = "pending"
	TicketResolved TicketStatus = "resolved"
)

// CustomerInfo 工单创建时的联系人快照。
type CustomerInfo struct {
	Name  string `gorm:"size:128" json:"name"`
	Email string `gorm:"size:128" json:"email"`
	Phone string `gorm:"size:32" json:"phone"`
}

type SupportTicket struct {
	ID        string    `gorm:"type:varchar(36);primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID   string       `gorm:"type:varchar(36);not null;index" json:"customer_id"`
	Title        string       `gorm:"size:200;not null" json:"title"`
	Description  string       `gorm:"type:text;not null" json:"description"`
	Status       TicketStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	CustomerInfo CustomerInfo `gorm:"embedded;embeddedPrefix:customer_" json:"customer_info"`
}

func (SupportTicket) TableName() string { return "support_tickets" }

func (t *SupportTicket) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
