// Package order 实现订单生命周期：建单事务、支付校验、状态流转与退货退款。
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/queue"
	"storefront/internal/store"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Inventory 库存账本，只在调用方事务内操作。
type Inventory interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID string, qty int) error
	Release(ctx context.Context, tx *gorm.DB, productID string, qty int) error
}

type Deps struct {
	Tx        *store.TxRunner
	Inventory Inventory
	Gateway   payment.Gateway
	Signer    *payment.Signer
	Events    queue.Publisher
	Log       *zap.Logger
	Currency  string
	// Now 可注入时钟，测试退货窗口时使用。
	Now func() time.Time
}

type Service struct {
	tx        *store.TxRunner
	db        *gorm.DB
	inventory Inventory
	gateway   payment.Gateway
	signer    *payment.Signer
	events    queue.Publisher
	log       *zap.Logger
	currency  string
	now       func() time.Time
	tracer    trace.Tracer
	validate  *validator.Validate
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Currency == "" {
		d.Currency = "INR"
	}
	return &Service{
		tx:        d.Tx,
		db:        d.Tx.DB(),
		inventory: d.Inventory,
		gateway:   d.Gateway,
		signer:    d.Signer,
		events:    d.Events,
		log:       d.Log.With(zap.String("component", "order")),
		currency:  d.Currency,
		now:       d.Now,
		tracer:    otel.Tracer("storefront/order"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// load 按 id 读订单，不存在时返回 NotFound。
func (s *Service) load(ctx context.Context, db *gorm.DB, id string) (*model.Order, error) {
	var o model.Order
	err := db.WithContext(ctx).Where("id = ?", id).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &o, nil
}

// save 以 version 做乐观锁整行更新；版本已变说明有并发写入，返回 Conflict。
func (s *Service) save(ctx context.Context, db *gorm.DB, o *model.Order) error {
	prev := o.Version
	o.Version = prev + 1
	o.SyncReturnStatus()
	res := db.WithContext(ctx).Model(o).
		Where("version = ?", prev).
		Select("*").Omit("CreatedAt").
		Updates(o)
	if res.Error != nil {
		o.Version = prev
		return fmt.Errorf("save order %s: %w", o.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		o.Version = prev
		return apperr.New(apperr.KindConflict, "order was modified concurrently, retry")
	}
	return nil
}

// publish 事务提交后投递事件，失败只记日志。
func (s *Service) publish(ctx context.Context, typ queue.EventType, o *model.Order) {
	if s.events == nil {
		return
	}
	e := queue.NewOrderEvent(typ, o.ID, o.CustomerID)
	e.Status = string(o.Status)
	e.Amount = o.TotalAmount.StringFixed(2)
	if o.ReturnRequest != nil {
		e.ReturnStatus = string(o.ReturnRequest.RequestStatus)
		if typ == queue.EventReturnApproved || typ == queue.EventReturnCompleted {
			if o.ReturnRequest.RefundAmount != nil {
				e.Amount = o.ReturnRequest.RefundAmount.StringFixed(2)
			}
		}
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("publish order event",
			zap.String("type", string(typ)),
			zap.String("order_id", o.ID),
			zap.Error(err))
	}
}

func (s *Service) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
		return apperr.New(apperr.KindValidation, strings.Join(parts, "; "))
	}
	return apperr.Wrap(apperr.KindValidation, err, "invalid input")
}
