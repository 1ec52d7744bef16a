package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/model"
	"storefront/internal/queue"
	"storefront/internal/store"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to, subject, body string
}

type outbox struct {
	mu   sync.Mutex
	mail []sent
	fail error
}

func (o *outbox) Send(_ context.Context, to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.mail = append(o.mail, sent{to, subject, body})
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.mail)
}

func newDispatcher(t *testing.T) (*Dispatcher, *outbox, *model.User) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	u := &model.User{FirstName: "Asha", LastName: "Rao", Email: "asha@example.com", PasswordHash: "x", Role: model.RoleCustomer, IsActive: true}
	require.NoError(t, db.Create(u).Error)

	box := &outbox{}
	return NewDispatcher(db, rdb, NewNotifier(box, time.Hour), nil), box, u
}

func TestNotifierTemplates(t *testing.T) {
	box := &outbox{}
	n := NewNotifier(box, time.Hour)
	u := &model.User{FirstName: "Asha", LastName: "<Rao>", Email: "asha@example.com"}

	require.NoError(t, n.SendWelcome(context.Background(), u))
	require.NoError(t, n.SendPasswordReset(context.Background(), u, "https://shop.example/reset-password?token=abc"))
	require.Len(t, box.mail, 2)

	assert.Equal(t, "asha@example.com", box.mail[0].to)
	assert.Contains(t, box.mail[0].body, "Asha &lt;Rao&gt;")
	assert.Equal(t, "Reset your password", box.mail[1].subject)
	assert.Contains(t, box.mail[1].body, "token=abc")
	assert.Contains(t, box.mail[1].body, "1h0m0s")
}

func TestDispatcherSendsOncePerEvent(t *testing.T) {
	d, box, u := newDispatcher(t)
	ctx := context.Background()

	e := queue.NewOrderEvent(queue.EventReturnApproved, "order-1", u.ID)
	e.Amount = "80.00"
	require.NoError(t, d.Handle(ctx, e))
	require.NoError(t, d.Handle(ctx, e))

	require.Equal(t, 1, box.count())
	assert.Equal(t, "Return approved", box.mail[0].subject)
	assert.Contains(t, box.mail[0].body, "order-1")
	assert.Contains(t, box.mail[0].body, "80.00")
}

func TestDispatcherIgnoresQuietEvents(t *testing.T) {
	d, box, u := newDispatcher(t)
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, queue.NewOrderEvent(queue.EventOrderCreated, "order-1", u.ID)))
	require.NoError(t, d.Handle(ctx, queue.NewOrderEvent(queue.EventPaymentIntentOrphaned, "order_gw_1", u.ID)))
	require.NoError(t, d.Handle(ctx, queue.NewOrderEvent(queue.EventReturnCompleted, "order-1", "ghost")))
	assert.Zero(t, box.count())
}

func TestDispatcherRetriesAfterSendFailure(t *testing.T) {
	d, box, u := newDispatcher(t)
	ctx := context.Background()
	e := queue.NewOrderEvent(queue.EventOrderPaymentConfirmed, "order-1", u.ID)

	box.fail = errors.New("smtp down")
	assert.Error(t, d.Handle(ctx, e))

	box.fail = nil
	require.NoError(t, d.Handle(ctx, e))
	assert.Equal(t, 1, box.count())
}
