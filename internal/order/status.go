package order

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/queue"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// adminTransitions 管理端可以手动推进的状态，退货相关状态只能走退货流程。
var adminTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:   {model.OrderConfirmed, model.OrderCancelled},
	model.OrderConfirmed: {model.OrderShipped, model.OrderCancelled},
	model.OrderShipped:   {model.OrderDelivered},
	model.OrderDelivered: {model.OrderRefunded},
}

// settableStatuses 管理端接口允许出现的目标状态。
var settableStatuses = map[model.OrderStatus]struct{}{
	model.OrderPending: {}, model.OrderConfirmed: {}, model.OrderShipped: {},
	model.OrderDelivered: {}, model.OrderCancelled: {}, model.OrderRefunded: {},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, s := range adminTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ChangeStatus 管理端改状态。cancelled 会在同一事务里归还库存，delivered 记录送达时间。
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Principal, id string, to model.OrderStatus) (*model.Order, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if _, ok := settableStatuses[to]; !ok {
		return nil, apperr.Newf(apperr.KindValidation, "invalid status: %s", to)
	}

	var o *model.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		o, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !canTransition(o.Status, to) {
			return apperr.Newf(apperr.KindInvalidState, "cannot change status from %s to %s", o.Status, to)
		}

		switch to {
		case model.OrderCancelled:
			for _, it := range o.Items {
				if err := s.releaseTolerant(ctx, tx, o.ID, it); err != nil {
					return err
				}
			}
		case model.OrderDelivered:
			now := s.now()
			o.DeliveredAt = &now
		case model.OrderRefunded:
			if o.PaymentInfo.Status == model.PaymentCompleted {
				o.PaymentInfo.Status = model.PaymentRefunded
			}
		}
		o.Status = to
		return s.save(ctx, tx, o)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("status", string(to)),
		zap.String("by", actor.ID))
	s.publish(ctx, queue.EventOrderStatusChanged, o)
	return o, nil
}

// UpdateShippingAddress 发货前允许修改收货地址。
func (s *Service) UpdateShippingAddress(ctx context.Context, actor auth.Principal, id string, addr model.ShippingAddress) (*model.Order, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(addr); err != nil {
		return nil, s.validationError(err)
	}
	o, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderPending && o.Status != model.OrderConfirmed {
		return nil, apperr.Newf(apperr.KindInvalidState, "cannot change address of %s order", o.Status)
	}
	o.ShippingAddress = addr
	if err := s.save(ctx, s.db, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Delete 只允许删除不再占用库存的订单，避免库存被永久扣住。
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	o, err := s.load(ctx, s.db, id)
	if err != nil {
		return err
	}
	if o.HoldsStock() {
		return apperr.Newf(apperr.KindInvalidState, "cannot delete %s order", o.Status)
	}
	res := s.db.WithContext(ctx).Where("version = ?", o.Version).Delete(o)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindConflict, "order was modified concurrently, retry")
	}
	s.log.Info("order deleted", zap.String("order_id", id), zap.String("by", actor.ID))
	return nil
}

// releaseTolerant 归还一行库存；商品已删除时只记日志。
func (s *Service) releaseTolerant(ctx context.Context, tx *gorm.DB, orderID string, it model.OrderItem) error {
	err := s.inventory.Release(ctx, tx, it.ProductID, it.Quantity)
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindNotFound {
		s.log.Warn("release stock for missing product",
			zap.String("order_id", orderID),
			zap.String("product_id", it.ProductID),
			zap.Int("quantity", it.Quantity))
		return nil
	}
	return err
}
