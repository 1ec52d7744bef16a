package order

import (
	"context"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/queue"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultApproveComment = "Return approved"
	MaxReturnImages       = 5
)

type SubmitReturnInput struct {
	Reason         string               `json:"reason"`
	ReasonCategory model.ReasonCategory `json:"reason_category"`
	Images         []string             `json:"images"`
}

type ApproveReturnInput struct {
	Comment      string           `json:"admin_comment"`
	RefundAmount *decimal.Decimal `json:"refund_amount"`
}

// SubmitReturn 客户对已送达订单发起退货：delivered → return_requested。
func (s *Service) SubmitReturn(ctx context.Context, actor auth.Principal, id string, in SubmitReturnInput) (*model.Order, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.New(apperr.KindValidation, "return reason is required")
	}
	if !in.ReasonCategory.Valid() {
		return nil, apperr.Newf(apperr.KindValidation, "invalid reason category: %s", in.ReasonCategory)
	}
	if len(in.Images) > MaxReturnImages {
		return nil, apperr.Newf(apperr.KindValidation, "at most %d images allowed", MaxReturnImages)
	}

	o, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != actor.ID {
		return nil, apperr.New(apperr.KindForbidden, "you can only return your own orders")
	}
	if o.Status != model.OrderDelivered {
		return nil, apperr.New(apperr.KindInvalidState, "only delivered orders can be returned")
	}
	if !o.IsReturnable {
		return nil, apperr.New(apperr.KindInvalidState, "this order is not eligible for return")
	}
	if o.ReturnRequest != nil && o.ReturnRequest.RequestStatus == model.ReturnPending {
		return nil, apperr.New(apperr.KindInvalidState, "a return request is already pending for this order")
	}

	now := s.now()
	days := int(now.Sub(o.DeliveryTime()).Hours() / 24)
	if days > o.ReturnWindowDays {
		return nil, apperr.Newf(apperr.KindReturnWindowExpired,
			"return window of %d days has expired", o.ReturnWindowDays)
	}

	images := in.Images
	if images == nil {
		images = []string{}
	}
	o.ReturnRequest = &model.ReturnRequest{
		RequestedBy:    actor.ID,
		Reason:         reason,
		ReasonCategory: in.ReasonCategory,
		Images:         images,
		RequestStatus:  model.ReturnPending,
		RequestedAt:    now,
	}
	o.Status = model.OrderReturnRequested
	if err := s.save(ctx, s.db, o); err != nil {
		return nil, err
	}

	s.log.Info("return requested", zap.String("order_id", o.ID), zap.String("category", string(in.ReasonCategory)))
	s.publish(ctx, queue.EventReturnRequested, o)
	return o, nil
}

// ApproveReturn 审核通过：pending → approved，退款金额默认订单总额。
func (s *Service) ApproveReturn(ctx context.Context, actor auth.Principal, id string, in ApproveReturnInput) (*model.Order, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	o, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if o.ReturnRequest == nil || o.ReturnRequest.RequestStatus != model.ReturnPending {
		return nil, apperr.New(apperr.KindInvalidState, "no pending return request for this order")
	}

	refund := o.TotalAmount
	if in.RefundAmount != nil && !in.RefundAmount.IsZero() {
		refund = *in.RefundAmount
	}
	if refund.IsNegative() || refund.GreaterThan(o.TotalAmount) {
		return nil, apperr.Newf(apperr.KindValidation,
			"refund amount must be between 0 and %s", o.TotalAmount.StringFixed(2))
	}
	comment := strings.TrimSpace(in.Comment)
	if comment == "" {
		comment = defaultApproveComment
	}

	now := s.now()
	rr := o.ReturnRequest
	rr.RequestStatus = model.ReturnApproved
	rr.ReviewedBy = actor.ID
	rr.ReviewedAt = &now
	rr.AdminComment = comment
	rr.RefundAmount = &refund
	rr.RefundStatus = model.RefundNotInitiated
	o.Status = model.OrderReturnApproved
	if err := s.save(ctx, s.db, o); err != nil {
		return nil, err
	}

	s.log.Info("return approved", zap.String("order_id", o.ID), zap.String("refund", refund.StringFixed(2)))
	s.publish(ctx, queue.EventReturnApproved, o)
	return o, nil
}

// RejectReturn 审核拒绝，必须填写原因。
func (s *Service) RejectReturn(ctx context.Context, actor auth.Principal, id, comment string) (*model.Order, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperr.New(apperr.KindValidation, "a comment is required when rejecting a return")
	}
	o, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if o.ReturnRequest == nil || o.ReturnRequest.RequestStatus != model.ReturnPending {
		return nil, apperr.New(apperr.KindInvalidState, "no pending return request for this order")
	}

	now := s.now()
	rr := o.ReturnRequest
	rr.RequestStatus = model.ReturnRejected
	rr.ReviewedBy = actor.ID
	rr.ReviewedAt = &now
	rr.AdminComment = comment
	o.Status = model.OrderReturnRejected
	if err := s.save(ctx, s.db, o); err != nil {
		return nil, err
	}

	s.log.Info("return rejected", zap.String("order_id", o.ID))
	s.publish(ctx, queue.EventReturnRejected, o)
	return o, nil
}

// CompleteReturn 收到退货：归还所有行的库存并进入退款，一个事务内完成。
func (s *Service) CompleteReturn(ctx context.Context, actor auth.Principal, id string) (*model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.complete_return")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}

	var o *model.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		o, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.ReturnRequest == nil || o.ReturnRequest.RequestStatus != model.ReturnApproved {
			return apperr.New(apperr.KindInvalidState, "return request must be approved before completion")
		}
		for _, it := range o.Items {
			if err := s.releaseTolerant(ctx, tx, o.ID, it); err != nil {
				return err
			}
		}
		o.ReturnRequest.RequestStatus = model.ReturnCompleted
		o.ReturnRequest.RefundStatus = model.RefundProcessing
		o.Status = model.OrderReturnCompleted
		o.PaymentInfo.Status = model.PaymentRefunded
		return s.save(ctx, tx, o)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("order.items_released", len(o.Items)))
	span.SetStatus(codes.Ok, "return completed")
	s.log.Info("return completed", zap.String("order_id", o.ID), zap.String("by", actor.ID))
	s.publish(ctx, queue.EventReturnCompleted, o)
	return o, nil
}

// CancelReturn 客户撤回尚未审核的退货申请，订单回到 delivered。
func (s *Service) CancelReturn(ctx context.Context, actor auth.Principal, id string) (*model.Order, error) {
	o, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != actor.ID {
		return nil, apperr.New(apperr.KindForbidden, "you can only cancel your own return requests")
	}
	if o.ReturnRequest == nil || o.ReturnRequest.RequestStatus != model.ReturnPending {
		return nil, apperr.New(apperr.KindInvalidState, "only pending return requests can be cancelled")
	}

	o.ReturnRequest = nil
	o.Status = model.OrderDelivered
	if err := s.save(ctx, s.db, o); err != nil {
		return nil, err
	}

	s.log.Info("return cancelled", zap.String("order_id", o.ID))
	s.publish(ctx, queue.EventReturnCancelled, o)
	return o, nil
}
