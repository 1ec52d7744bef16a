package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/inventory"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/payment/paymenttest"
	"storefront/internal/queue"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "rzp_test_secret"

type eventLog struct {
	mu     sync.Mutex
	events []queue.OrderEvent
}

func (l *eventLog) Publish(_ context.Context, e queue.OrderEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []queue.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]queue.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	gateway *paymenttest.Gateway
	signer  *payment.Signer
	events  *eventLog
	now     time.Time

	customer auth.Principal
	other    auth.Principal
	admin    auth.Principal
	staff    auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		gateway: &paymenttest.Gateway{},
		signer:  payment.NewSigner(testSecret),
		events:  &eventLog{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Deps{
		Tx:        store.NewTxRunner(db, 5*time.Second),
		Inventory: inventory.NewLedger(),
		Gateway:   f.gateway,
		Signer:    f.signer,
		Events:    f.events,
		Now:       func() time.Time { return f.now },
	})

	f.customer = f.user(t, "ana@example.com", model.RoleCustomer)
	f.other = f.user(t, "ben@example.com", model.RoleCustomer)
	f.admin = f.user(t, "root@example.com", model.RoleAdmin)
	f.staff = f.user(t, "desk@example.com", model.RoleStaff)
	return f
}

func (f *fixture) user(t *testing.T, email string, role model.Role) auth.Principal {
	t.Helper()
	u := &model.User{FirstName: "T", Email: email, PasswordHash: "x", Role: role, IsActive: true}
	require.NoError(t, f.db.Create(u).Error)
	return auth.Principal{ID: u.ID, Role: role}
}

func (f *fixture) product(t *testing.T, name string, price string, stock int64) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, IsActive: true}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) stock(t *testing.T, productID string) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, f.db.Unscoped().Where("id = ?", productID).Take(&p).Error)
	return p.Stock
}

func (f *fixture) reload(t *testing.T, id string) *model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, f.db.Where("id = ?", id).Take(&o).Error)
	return &o
}

func address() model.ShippingAddress {
	return model.ShippingAddress{
		Address: "12 MG Road",
		Pincode: "560001",
		City:    "Bengaluru",
		State:   "KA",
		Country: "IN",
	}
}

func items(lines ...ItemInput) CreateInput {
	return CreateInput{Items: lines, ShippingAddress: address()}
}

func line(productID string, qty int) ItemInput {
	return ItemInput{ProductID: productID, Quantity: qty}
}

// checkout 以 f.customer 身份下单并返回订单。
func (f *fixture) checkout(t *testing.T, p *model.Product, qty int) *model.Order {
	t.Helper()
	res, err := f.svc.Checkout(context.Background(), f.customer, items(line(p.ID, qty)))
	require.NoError(t, err)
	return res.Order
}

// deliver 推进订单到 delivered，送达时间为 f.now 减去 ago。
func (f *fixture) deliver(t *testing.T, id string, ago time.Duration) *model.Order {
	t.Helper()
	base := f.now
	f.now = base.Add(-ago)
	defer func() { f.now = base }()

	var (
		o   *model.Order
		err error
	)
	for _, s := range []model.OrderStatus{model.OrderConfirmed, model.OrderShipped, model.OrderDelivered} {
		o, err = f.svc.ChangeStatus(context.Background(), f.admin, id, s)
		require.NoError(t, err)
	}
	return o
}

func (f *fixture) deliveredOrder(t *testing.T, p *model.Product, qty int, ago time.Duration) *model.Order {
	t.Helper()
	o := f.checkout(t, p, qty)
	return f.deliver(t, o.ID, ago)
}
