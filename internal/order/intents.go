package order

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type IntentInput struct {
	// Amount 以主货币单位计，例如 499.50
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
}

// CreateIntent 先付款后下单的客户端直接申请网关意图，记为 standalone。
func (s *Service) CreateIntent(ctx context.Context, actor auth.Principal, in IntentInput) (*payment.Intent, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.KindValidation, "amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	receipt := strings.TrimSpace(in.Receipt)
	if receipt == "" {
		receipt = "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	if len(receipt) > 40 {
		return nil, apperr.New(apperr.KindValidation, "receipt must be at most 40 characters")
	}

	amountMinor := in.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	got, err := s.gateway.CreateIntent(ctx, amountMinor, currency, receipt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "payment gateway unavailable")
	}
	rec := &model.PaymentIntent{
		GatewayOrderID: got.ID,
		CustomerID:     actor.ID,
		AmountMinor:    got.AmountMinor,
		Currency:       got.Currency,
		Receipt:        got.Receipt,
		Status:         model.PaymentIntentStandalone,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("insert payment intent: %w", err)
	}
	s.log.Info("standalone payment intent created",
		zap.String("gateway_order_id", got.ID),
		zap.String("customer_id", actor.ID),
		zap.Int64("amount_minor", got.AmountMinor))
	return &got, nil
}

// OrphanedIntents 列出需要人工对账的孤儿意图，最新的在前。
func (s *Service) OrphanedIntents(ctx context.Context, actor auth.Principal) ([]model.PaymentIntent, error) {
	if err := actor.RequireReviewer(); err != nil {
		return nil, err
	}
	var list []model.PaymentIntent
	err := s.db.WithContext(ctx).
		Where("status = ?", model.PaymentIntentOrphaned).
		Order("id DESC").
		Find(&list).Error
	return list, err
}
