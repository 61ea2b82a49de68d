package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository/repotest"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx      context.Context
	store    *repotest.Store
	clock    *testClock
	pub      *recordingPublisher
	cart     *CartService
	orders   *OrderService
	profiles *ProfileService
	notes    *NotificationService
}

var testOrderConfig = OrderConfig{
	DeliveryFee:           decimal.NewFromInt(50000),
	FreeDeliveryThreshold: decimal.NewFromInt(500000),
	WelcomeCredit:         decimal.NewFromInt(100000),
	PaymentGrace:          5 * time.Minute,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := repotest.New()
	store.Now = clock.Now
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}

	cart := NewCartService(store, nil, 24*time.Hour, logger)
	cart.now = clock.Now
	orders := NewOrderService(store, testOrderConfig, pub, nil, logger)
	orders.now = clock.Now

	return &fixture{
		ctx:      context.Background(),
		store:    store,
		clock:    clock,
		pub:      pub,
		cart:     cart,
		orders:   orders,
		profiles: NewProfileService(store, orders, testOrderConfig.WelcomeCredit),
		notes:    NewNotificationService(store),
	}
}

func (f *fixture) user(t *testing.T, role string) *model.User {
	t.Helper()
	u := &model.User{Email: uuid.NewString()[:8] + "@example.com", Password: "x", FirstName: "Sara", Role: role}
	require.NoError(t, f.store.Users().Create(f.ctx, u))
	return u
}

func (f *fixture) product(t *testing.T, name string, price int64, stock int) *model.Product {
	t.Helper()
	p := &model.Product{
		Name:              name,
		Price:             decimal.NewFromInt(price),
		Stock:             stock,
		WeightMultipliers: map[string]decimal.Decimal{"250g": decimal.NewFromInt(1), "500g": decimal.RequireFromString("1.9")},
		IsActive:          true,
	}
	require.NoError(t, f.store.Products().Create(f.ctx, p))
	return p
}

func (f *fixture) address(t *testing.T, userID uuid.UUID) *model.UserAddress {
	t.Helper()
	a := &model.UserAddress{UserID: userID, Title: "خانه", Province: "تهران", City: "تهران", Street: "ولیعصر ۱۲", PostalCode: "1234567890"}
	require.NoError(t, f.store.Addresses().Create(f.ctx, a))
	return a
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.store.Products().GetByID(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}

func (f *fixture) add(t *testing.T, userID, productID uuid.UUID, qty int) *CartSummary {
	t.Helper()
	summary, err := f.cart.AddItem(f.ctx, userID, AddItemInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
	return summary
}
