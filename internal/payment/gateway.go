// Package payment 封装外部支付网关：创建支付意图、校验回调签名。
package payment

import (
	"context"
	"fmt"

	"github.com/razorpay/razorpay-go"
)

// Intent 网关侧的支付意图。AmountMinor 以最小货币单位计（分/派萨）。
type Intent struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
}

// Gateway 抽象支付网关，测试里用假实现替换。
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (Intent, error)
}

// RazorpayGateway 通过 Razorpay Orders API 创建支付意图。
type RazorpayGateway struct {
	client *razorpay.Client
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

func (g *RazorpayGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	data := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}
	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return Intent{}, fmt.Errorf("razorpay create order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return Intent{}, fmt.Errorf("razorpay create order: response without id")
	}
	return Intent{ID: id, AmountMinor: amountMinor, Currency: currency, Receipt: receipt}, nil
}
