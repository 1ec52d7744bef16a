package notify

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/model"
)

const shopName = "Storefront"

// Notifier 渲染模板并通过 Sender 发出，实现 auth.Mailer。
type Notifier struct {
	sender   Sender
	resetTTL time.Duration
}

func NewNotifier(sender Sender, resetTTL time.Duration) *Notifier {
	return &Notifier{sender: sender, resetTTL: resetTTL}
}

func (n *Notifier) SendWelcome(ctx context.Context, u *model.User) error {
	body, err := render("welcome", map[string]any{"Name": u.FullName(), "Shop": shopName})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, u.Email, "Welcome to "+shopName, body)
}

func (n *Notifier) SendPasswordReset(ctx context.Context, u *model.User, resetURL string) error {
	body, err := render("reset", map[string]any{
		"Name": u.FullName(),
		"Link": resetURL,
		"TTL":  n.resetTTL.String(),
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, u.Email, "Reset your password", body)
}

// SendOrderUpdate 订单或退货状态变化的通知。
func (n *Notifier) SendOrderUpdate(ctx context.Context, u *model.User, subject, headline, orderID, amount string) error {
	body, err := render("order", map[string]any{
		"Name":     u.FullName(),
		"Headline": headline,
		"OrderID":  orderID,
		"Amount":   amount,
	})
	if err != nil {
		return fmt.Errorf("render order mail: %w", err)
	}
	return n.sender.Send(ctx, u.Email, subject, body)
}
