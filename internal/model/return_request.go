package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReturnRequestStatus string

const (
	ReturnPending   ReturnRequestStatus = "pending"
	ReturnApproved  ReturnRequestStatus = "approved"
	ReturnRejected  ReturnRequestStatus = "rejected"
	ReturnCompleted ReturnRequestStatus = "completed"
)

type RefundStatus string

const (
	RefundNotInitiated RefundStatus = "not_initiated"
	RefundProcessing   RefundStatus = "processing"
	RefundCompleted    RefundStatus = "completed"
	RefundFailed       RefundStatus = "failed"
)

// ReasonCategory 退货原因分类。
type ReasonCategory string

const (
	ReasonDefective      ReasonCategory = "defective"
	ReasonWrongItem      ReasonCategory = "wrong_item"
	ReasonNotAsDescribed ReasonCategory = "not_as_described"
	ReasonDamaged        ReasonCategory = "damaged"
	ReasonSizeIssue      ReasonCategory = "size_issue"
	ReasonQualityIssue   ReasonCategory = "quality_issue"
	ReasonChangedMind    ReasonCategory = "changed_mind"
	ReasonOther          ReasonCategory = "other"
)

// ReasonCategories 合法取值，供校验与前端下拉使用。
var ReasonCategories = []ReasonCategory{
	ReasonDefective, ReasonWrongItem, ReasonNotAsDescribed, ReasonDamaged,
	ReasonSizeIssue, ReasonQualityIssue, ReasonChangedMind, ReasonOther,
}

func (c ReasonCategory) Valid() bool {
	for _, v := range ReasonCategories {
		if v == c {
			return true
		}
	}
	return false
}

// ReturnRequest 是订单内嵌的退货子记录，首次申请前为 nil。
type ReturnRequest struct {
	RequestedBy    string              `json:"requested_by"`
	Reason         string              `json:"reason"`
	ReasonCategory ReasonCategory      `json:"reason_category"`
	Images         []string            `json:"images"`
	RequestStatus  ReturnRequestStatus `json:"request_status"`
	RequestedAt    time.Time           `json:"requested_at"`

	ReviewedBy   string     `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	AdminComment string     `json:"admin_comment,omitempty"`

	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundStatus RefundStatus     `json:"refund_status,omitempty"`
}
