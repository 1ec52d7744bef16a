package order

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/queue"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type VerifyInput struct {
	GatewayOrderID string `json:"razorpay_order_id" binding:"required" validate:"required"`
	PaymentID      string `json:"razorpay_payment_id" binding:"required" validate:"required"`
	Signature      string `json:"razorpay_signature" binding:"required" validate:"required"`
	// OrderID 可选；给出时签名失败会把该订单标记为支付失败
	OrderID string `json:"order_id"`
}

// VerifyPayment 校验网关回调签名，成功则订单进入 confirmed。
// 未给 OrderID 且没有订单持有该网关单号时（先付款后下单），只记录到 standalone 意图上，返回 nil 订单。
func (s *Service) VerifyPayment(ctx context.Context, actor auth.Principal, in VerifyInput) (*model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.verify_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.gateway_order_id", in.GatewayOrderID),
		attribute.String("order.id", in.OrderID),
	)

	if err := s.validate.Struct(in); err != nil {
		return nil, s.validationError(err)
	}

	if !s.signer.Verify(in.GatewayOrderID, in.PaymentID, in.Signature) {
		span.SetStatus(codes.Error, "signature mismatch")
		if in.OrderID != "" {
			s.markPaymentFailed(ctx, actor, in.OrderID)
		}
		return nil, apperr.New(apperr.KindInvalidSignature, "invalid payment signature")
	}

	o, err := s.findForPayment(ctx, in)
	if err != nil {
		return nil, err
	}
	if o == nil {
		if err := s.markIntentPaid(ctx, actor, in); err != nil {
			return nil, err
		}
		span.SetStatus(codes.Ok, "payment verified")
		return nil, nil
	}
	if !actor.CanAccess(o.CustomerID) {
		return nil, apperr.New(apperr.KindForbidden, "order belongs to another customer")
	}
	if o.PaymentInfo.RazorpayOrderID != "" && o.PaymentInfo.RazorpayOrderID != in.GatewayOrderID {
		return nil, apperr.New(apperr.KindValidation, "payment does not belong to this order")
	}

	// 网关重复回调：同一笔支付已确认过，直接返回
	if o.PaymentInfo.Status == model.PaymentCompleted && o.PaymentInfo.RazorpayPaymentID == in.PaymentID {
		return o, nil
	}
	// 已取消的订单库存已归还，不能再被确认
	if o.Status != model.OrderPending {
		return nil, apperr.Newf(apperr.KindInvalidState, "cannot confirm payment for order in status %s", o.Status)
	}

	o.PaymentInfo.RazorpayOrderID = in.GatewayOrderID
	o.PaymentInfo.RazorpayPaymentID = in.PaymentID
	o.PaymentInfo.RazorpaySignature = in.Signature
	o.PaymentInfo.Status = model.PaymentCompleted
	o.Status = model.OrderConfirmed
	if err := s.save(ctx, s.db, o); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "payment confirmed")
	s.log.Info("payment confirmed", zap.String("order_id", o.ID), zap.String("payment_id", in.PaymentID))
	s.publish(ctx, queue.EventOrderPaymentConfirmed, o)
	return o, nil
}

// findForPayment 按 OrderID 加载订单；未给出时按网关单号查找，找不到返回 nil, nil。
func (s *Service) findForPayment(ctx context.Context, in VerifyInput) (*model.Order, error) {
	if in.OrderID != "" {
		return s.load(ctx, s.db, in.OrderID)
	}
	var o model.Order
	err := s.db.WithContext(ctx).Where("payment_razorpay_order_id = ?", in.GatewayOrderID).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order by gateway id: %w", err)
	}
	return &o, nil
}

// markIntentPaid 把 standalone 意图记为已付款。网关单号不在本地记录中时只记日志。
func (s *Service) markIntentPaid(ctx context.Context, actor auth.Principal, in VerifyInput) error {
	var rec model.PaymentIntent
	err := s.db.WithContext(ctx).Where("gateway_order_id = ?", in.GatewayOrderID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info("payment verified without local record",
			zap.String("gateway_order_id", in.GatewayOrderID), zap.String("payment_id", in.PaymentID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find payment intent: %w", err)
	}
	if !actor.CanAccess(rec.CustomerID) {
		return apperr.New(apperr.KindForbidden, "payment belongs to another customer")
	}
	if rec.Status != model.PaymentIntentStandalone {
		return nil
	}

	err = s.db.WithContext(ctx).Model(&model.PaymentIntent{}).
		Where("id = ? AND status = ?", rec.ID, model.PaymentIntentStandalone).
		Updates(map[string]any{"status": model.PaymentIntentPaid, "payment_id": in.PaymentID}).Error
	if err != nil {
		return fmt.Errorf("mark payment intent paid: %w", err)
	}
	s.log.Info("standalone payment verified",
		zap.String("gateway_order_id", in.GatewayOrderID), zap.String("payment_id", in.PaymentID))
	return nil
}

// markPaymentFailed 签名不符时把待支付订单标记为失败；已完成的支付不受影响。
func (s *Service) markPaymentFailed(ctx context.Context, actor auth.Principal, orderID string) {
	o, err := s.load(ctx, s.db, orderID)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			s.log.Warn("load order for failed payment", zap.String("order_id", orderID), zap.Error(err))
		}
		return
	}
	if !actor.CanAccess(o.CustomerID) || o.PaymentInfo.Status == model.PaymentCompleted ||
		o.PaymentInfo.Status == model.PaymentRefunded {
		return
	}
	o.PaymentInfo.Status = model.PaymentFailed
	if err := s.save(ctx, s.db, o); err != nil {
		s.log.Warn("mark payment failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	s.publish(ctx, queue.EventOrderPaymentFailed, o)
}
