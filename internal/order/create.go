package order

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/queue"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ItemInput 下单行。Price/Name 为空时取商品目录里的当前值。
type ItemInput struct {
	ProductID string           `json:"product_id" binding:"required" validate:"required"`
	Quantity  int              `json:"quantity" binding:"required,min=1" validate:"min=1"`
	Price     *decimal.Decimal `json:"price"`
	Name      string           `json:"name"`
}

type CreateInput struct {
	// CustomerID 仅管理端代客下单时使用
	CustomerID      string                `json:"customer_id"`
	Items           []ItemInput           `json:"items" binding:"required,min=1,dive" validate:"required,min=1,dive"`
	ShippingAddress model.ShippingAddress `json:"shipping_address" binding:"required" validate:"required"`
}

type CreateResult struct {
	Order  *model.Order    `json:"order"`
	Intent *payment.Intent `json:"payment_intent,omitempty"`
}

// CreateForCustomer 管理端代客下单：指定客户，不走支付网关。
func (s *Service) CreateForCustomer(ctx context.Context, actor auth.Principal, in CreateInput) (*CreateResult, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	if in.CustomerID == "" {
		return nil, apperr.New(apperr.KindValidation, "customer_id is required")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", in.CustomerID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("lookup customer: %w", err)
	}
	if n == 0 {
		return nil, apperr.New(apperr.KindNotFound, "customer not found")
	}
	return s.create(ctx, in.CustomerID, in, false)
}

// Checkout 客户自助下单：为订单总额创建网关支付意图。
func (s *Service) Checkout(ctx context.Context, actor auth.Principal, in CreateInput) (*CreateResult, error) {
	if !actor.IsCustomer() {
		return nil, apperr.New(apperr.KindForbidden, "only customers can check out")
	}
	return s.create(ctx, actor.ID, in, true)
}

// create 建单：(可选) 预估总额并创建支付意图 → 事务内逐行扣库存、落订单，任一步失败整体回滚。
func (s *Service) create(ctx context.Context, customerID string, in CreateInput, withIntent bool) (*CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.create")
	defer span.End()

	if err := s.validate.Struct(in); err != nil {
		return nil, s.validationError(err)
	}
	for _, it := range in.Items {
		if it.Price != nil && it.Price.IsNegative() {
			return nil, apperr.Newf(apperr.KindValidation, "price must not be negative: %s", it.ProductID)
		}
	}

	orderID := uuid.NewString()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("customer.id", customerID),
		attribute.Int("order.items", len(in.Items)),
		attribute.Bool("order.with_intent", withIntent),
	)

	// 网关调用不能占着写锁：先按当前库存和价格预估总额，拿到意图后再进写事务。
	// 事务里重新扣库存并核对金额，期间被抢光或改价则回滚，意图记为孤儿。
	var intent *payment.Intent
	if withIntent {
		quoted, err := s.quote(ctx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.Message(err))
			return nil, err
		}
		got, err := s.gateway.CreateIntent(ctx, minorUnits(quoted), s.currency, "order_"+orderID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "gateway")
			return nil, apperr.Wrap(apperr.KindInternal, err, "payment gateway unavailable")
		}
		intent = &got
	}

	var o *model.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		items := make([]model.OrderItem, 0, len(in.Items))
		total := decimal.Zero
		for _, it := range in.Items {
			if err := s.inventory.Reserve(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			line, err := s.lineItem(ctx, tx, it)
			if err != nil {
				return err
			}
			total = total.Add(line.Subtotal)
			items = append(items, line)
		}

		o = &model.Order{
			ID:               orderID,
			CustomerID:       customerID,
			Items:            items,
			TotalAmount:      total,
			Status:           model.OrderPending,
			PaymentInfo:      model.PaymentInfo{Status: model.PaymentPending},
			ShippingAddress:  in.ShippingAddress,
			IsReturnable:     true,
			ReturnWindowDays: model.DefaultReturnWindowDays,
			Version:          1,
		}

		if intent != nil {
			if minorUnits(total) != intent.AmountMinor {
				return apperr.New(apperr.KindConflict, "prices changed during checkout, please retry")
			}
			o.PaymentInfo.RazorpayOrderID = intent.ID
		}

		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if intent != nil {
			rec := &model.PaymentIntent{
				GatewayOrderID: intent.ID,
				OrderID:        orderID,
				CustomerID:     customerID,
				AmountMinor:    intent.AmountMinor,
				Currency:       intent.Currency,
				Receipt:        intent.Receipt,
				Status:         model.PaymentIntentAttached,
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("insert payment intent: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if intent != nil {
			s.recordOrphan(ctx, customerID, orderID, *intent, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("order.total", o.TotalAmount.String()))
	span.SetStatus(codes.Ok, "order created")
	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", customerID),
		zap.String("total", o.TotalAmount.StringFixed(2)))
	s.publish(ctx, queue.EventOrderCreated, o)
	return &CreateResult{Order: o, Intent: intent}, nil
}

// quote 只读预检：按当前价格算总额，同一商品的数量合并后检查库存。
// 结果不加锁，只用来决定向网关申请的金额。
func (s *Service) quote(ctx context.Context, in CreateInput) (decimal.Decimal, error) {
	need := make(map[string]int64, len(in.Items))
	total := decimal.Zero
	for _, it := range in.Items {
		var p model.Product
		err := s.db.WithContext(ctx).Select("id", "name", "price", "stock").Where("id = ?", it.ProductID).Take(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperr.Newf(apperr.KindNotFound, "product not found: %s", it.ProductID)
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("load product %s: %w", it.ProductID, err)
		}
		need[it.ProductID] += int64(it.Quantity)
		if p.Stock < need[it.ProductID] {
			return decimal.Zero, apperr.Newf(apperr.KindInsufficientStock, "insufficient stock for product: %s", p.Name)
		}
		total = total.Add(priceLine(it, &p).Subtotal)
	}
	return total, nil
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// lineItem 生成订单行快照，subtotal = price * quantity。
func (s *Service) lineItem(ctx context.Context, tx *gorm.DB, it ItemInput) (model.OrderItem, error) {
	if it.Price != nil && it.Name != "" {
		return priceLine(it, nil), nil
	}
	var p model.Product
	err := tx.WithContext(ctx).Select("id", "name", "price").Where("id = ?", it.ProductID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.OrderItem{}, apperr.Newf(apperr.KindNotFound, "product not found: %s", it.ProductID)
	}
	if err != nil {
		return model.OrderItem{}, fmt.Errorf("load product %s: %w", it.ProductID, err)
	}
	return priceLine(it, &p), nil
}

// priceLine 输入里的价格和名称优先，缺省时取 p 的当前值。
func priceLine(it ItemInput, p *model.Product) model.OrderItem {
	line := model.OrderItem{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity}
	if it.Price != nil {
		line.Price = *it.Price
	} else if p != nil {
		line.Price = p.Price
	}
	if line.Name == "" && p != nil {
		line.Name = p.Name
	}
	line.Subtotal = line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
	return line
}

// recordOrphan 网关意图已创建但本地事务回滚：落对账记录并发事件，不取消远端意图。
func (s *Service) recordOrphan(ctx context.Context, customerID, orderID string, in payment.Intent, cause error) {
	s.log.Warn("orphaned payment intent",
		zap.String("gateway_order_id", in.ID),
		zap.String("order_id", orderID),
		zap.Int64("amount_minor", in.AmountMinor),
		zap.Error(cause))

	msg := apperr.Message(cause)
	if len(msg) > 255 {
		msg = msg[:255]
	}
	rec := &model.PaymentIntent{
		GatewayOrderID: in.ID,
		OrderID:        orderID,
		CustomerID:     customerID,
		AmountMinor:    in.AmountMinor,
		Currency:       in.Currency,
		Receipt:        in.Receipt,
		Status:         model.PaymentIntentOrphaned,
		ErrorMsg:       msg,
	}
	// 事务可能因超时失败，这里用独立的 context
	bg := context.WithoutCancel(ctx)
	if err := s.db.WithContext(bg).Create(rec).Error; err != nil {
		s.log.Error("record orphaned intent", zap.String("gateway_order_id", in.ID), zap.Error(err))
	}
	if s.events != nil {
		e := queue.NewOrderEvent(queue.EventPaymentIntentOrphaned, orderID, customerID)
		e.Amount = decimal.New(in.AmountMinor, -2).StringFixed(2)
		e.Status = model.PaymentIntentOrphaned.String()
		if err := s.events.Publish(bg, e); err != nil {
			s.log.Warn("publish orphaned intent", zap.String("gateway_order_id", in.ID), zap.Error(err))
		}
	}
}
