// Package paymenttest 提供测试用的网关实现。
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/payment"
)

// Gateway 记录每次调用并按序号生成意图 ID；Err 非空时所有调用失败。
type Gateway struct {
	mu    sync.Mutex
	Err   error
	Calls []payment.Intent
}

func (g *Gateway) CreateIntent(_ context.Context, amountMinor int64, currency, receipt string) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return payment.Intent{}, g.Err
	}
	in := payment.Intent{
		ID:          fmt.Sprintf("order_test_%d", len(g.Calls)+1),
		AmountMinor: amountMinor,
		Currency:    currency,
		Receipt:     receipt,
	}
	g.Calls = append(g.Calls, in)
	return in, nil
}

func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}
