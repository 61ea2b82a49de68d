package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/coffeeshop/internal/model"
)

func (f *fixture) checkout(t *testing.T, userID, addressID uuid.UUID, method model.DeliveryMethod) *model.Order {
	t.Helper()
	order, err := f.orders.Checkout(f.ctx, userID, CheckoutInput{DeliveryMethod: method, AddressID: addressID, Notes: "زنگ نزنید"})
	require.NoError(t, err)
	return order
}

func (f *fixture) notifications(t *testing.T, userID uuid.UUID) []model.Notification {
	t.Helper()
	list, _, err := f.notes.List(f.ctx, userID)
	require.NoError(t, err)
	return list
}

func TestOrderService_Checkout(t *testing.T) {
	f := newFixture(t)
	staff := f.user(t, model.RoleStaff)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Ethiopia Guji", 100000, 10)
	f.add(t, u.ID, p.ID, 2)

	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)

	assert.Equal(t, model.OrderStatusPendingPayment, order.Status)
	assert.True(t, decimal.NewFromInt(200000).Equal(order.Subtotal))
	assert.True(t, decimal.NewFromInt(50000).Equal(order.DeliveryFee))
	assert.True(t, decimal.NewFromInt(100000).Equal(order.CreditApplied))
	assert.True(t, decimal.NewFromInt(150000).Equal(order.TotalAmount))
	assert.Equal(t, "خانه - ولیعصر ۱۲ - تهران - تهران", order.ShippingAddress)
	assert.Equal(t, "1234567890", order.PostalCode)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "Ethiopia Guji", order.Items[0].ProductName)

	// the reservation taken at add-to-cart time becomes the order's
	assert.Equal(t, 8, f.stock(t, p.ID))
	count, err := f.cart.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	mine := f.notifications(t, u.ID)
	require.Len(t, mine, 1)
	assert.Equal(t, model.NotificationOrderNew, mine[0].Type)
	assert.Equal(t, "سفارش شما با مبلغ 150000 تومان ثبت شد.", mine[0].Message)
	theirs := f.notifications(t, staff.ID)
	require.Len(t, theirs, 1)
	assert.Contains(t, theirs[0].Message, u.Email)

	assert.Equal(t, []string{model.EventOrderCreated}, f.pub.types())
}

func TestOrderService_Checkout_WelcomeCreditSingleUse(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Colombia", 30000, 10)

	f.add(t, u.ID, p.ID, 1)
	first := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	assert.True(t, decimal.NewFromInt(80000).Equal(first.CreditApplied))
	assert.True(t, first.TotalAmount.IsZero())

	f.add(t, u.ID, p.ID, 1)
	second := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	assert.True(t, second.CreditApplied.IsZero())
	assert.True(t, decimal.NewFromInt(80000).Equal(second.TotalAmount))

	profile, err := f.store.Profiles().GetByUserID(f.ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, profile.CreditAwarded)
	assert.True(t, profile.CreditBalance.IsZero())
	assert.NotNil(t, profile.CreditConsumedAt)
}

func TestOrderService_Checkout_FreeDeliveryThreshold(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Geisha", 250000, 10)
	f.add(t, u.ID, p.ID, 2)

	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPickup)
	assert.True(t, order.DeliveryFee.IsZero())
	assert.True(t, decimal.NewFromInt(400000).Equal(order.TotalAmount))
}

func TestOrderService_Checkout_Rejects(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	other := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	foreign := f.address(t, other.ID)
	p := f.product(t, "Brazil", 10000, 10)

	_, err := f.orders.Checkout(f.ctx, u.ID, CheckoutInput{DeliveryMethod: model.DeliveryPost, AddressID: addr.ID})
	assert.ErrorIs(t, err, ErrEmptyCart)

	f.add(t, u.ID, p.ID, 1)
	_, err = f.orders.Checkout(f.ctx, u.ID, CheckoutInput{DeliveryMethod: model.DeliveryPost, AddressID: foreign.ID})
	assert.ErrorIs(t, err, ErrAddressNotFound)

	_, err = f.orders.Checkout(f.ctx, u.ID, CheckoutInput{DeliveryMethod: "drone", AddressID: addr.ID})
	assert.ErrorIs(t, err, ErrInvalidDeliveryMethod)

	count, err := f.cart.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOrderService_Checkout_IsAtomic(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	good := f.product(t, "House Blend", 10000, 10)
	bad := f.product(t, "Seasonal", 20000, 10)
	f.add(t, u.ID, good.ID, 2)
	f.add(t, u.ID, bad.ID, 1)

	bad.IsActive = false
	require.NoError(t, f.store.Products().Update(f.ctx, bad))

	_, err := f.orders.Checkout(f.ctx, u.ID, CheckoutInput{DeliveryMethod: model.DeliveryPost, AddressID: addr.ID})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Seasonal", stockErr.ProductName)

	orders, _, err := f.orders.List(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	count, err := f.cart.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 8, f.stock(t, good.ID))
	assert.Equal(t, 9, f.stock(t, bad.ID))

	profile, err := f.store.Profiles().GetByUserID(f.ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, profile == nil || profile.CreditConsumedAt == nil)
	assert.Empty(t, f.notifications(t, u.ID))
}

func TestOrderService_Checkout_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Kenya", 10000, 10)
	f.add(t, u.ID, p.ID, 3)

	boom := errors.New("disk full")
	f.store.FailNext("Notifications.Create", boom)
	_, err := f.orders.Checkout(f.ctx, u.ID, CheckoutInput{DeliveryMethod: model.DeliveryPost, AddressID: addr.ID})
	assert.ErrorIs(t, err, boom)

	orders, _, err := f.orders.List(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	count, err := f.cart.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Empty(t, f.pub.types())
}

func TestOrderService_PriceIsFrozen(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Nicaragua", 10000, 10)
	_, err := f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: 2, Weight: "500g"})
	require.NoError(t, err)
	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)

	p, err = f.store.Products().GetByID(f.ctx, p.ID)
	require.NoError(t, err)
	p.Price = decimal.NewFromInt(99000)
	require.NoError(t, f.store.Products().Update(f.ctx, p))

	got, err := f.orders.Get(f.ctx, u.ID, false, order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(19000).Equal(got.Items[0].Price))
	assert.True(t, order.TotalAmount.Equal(got.TotalAmount))
}

func TestOrderService_PostLifecycle(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Peru", 10000, 10)
	f.add(t, u.ID, p.ID, 1)
	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)

	steps := []struct {
		op   func() (*model.Order, error)
		want model.OrderStatus
	}{
		{func() (*model.Order, error) { return f.orders.MarkPaid(f.ctx, order.ID) }, model.OrderStatusPreparing},
		{func() (*model.Order, error) { return f.orders.MarkReady(f.ctx, order.ID) }, model.OrderStatusReady},
		{func() (*model.Order, error) { return f.orders.StartShippingPreparation(f.ctx, order.ID) }, model.OrderStatusShippingPreparation},
		{func() (*model.Order, error) { return f.orders.MarkInTransit(f.ctx, order.ID) }, model.OrderStatusInTransit},
	}
	for _, step := range steps {
		got, err := step.op()
		require.NoError(t, err)
		assert.Equal(t, step.want, got.Status)
	}

	var statusNotes int
	for _, n := range f.notifications(t, u.ID) {
		if n.Type == model.NotificationOrderStatus {
			statusNotes++
		}
	}
	assert.Equal(t, 4, statusNotes)
	assert.Len(t, f.pub.types(), 5)

	_, err := f.orders.Transition(f.ctx, order.ID, model.OrderStatusPickupReady)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderService_IllegalTransitions(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Honduras", 10000, 10)
	f.add(t, u.ID, p.ID, 1)
	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)

	_, err := f.orders.Transition(f.ctx, order.ID, model.OrderStatusReady)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.OrderStatusPendingPayment, te.From)
	assert.Equal(t, model.OrderStatusReady, te.To)

	_, err = f.orders.MarkPaid(f.ctx, order.ID)
	require.NoError(t, err)
	_, err = f.orders.MarkReady(f.ctx, order.ID)
	require.NoError(t, err)

	_, err = f.orders.Transition(f.ctx, order.ID, model.OrderStatusPreparing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.orders.Transition(f.ctx, order.ID, "cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.orders.Get(f.ctx, u.ID, false, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusReady, got.Status)

	_, err = f.orders.MarkPaid(f.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_PickupAutoAdvance(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Java", 10000, 10)
	f.add(t, u.ID, p.ID, 1)
	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPickup)

	_, err := f.orders.MarkPaid(f.ctx, order.ID)
	require.NoError(t, err)
	got, err := f.orders.MarkReady(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPickupReady, got.Status)

	stored, err := f.orders.Get(f.ctx, u.ID, false, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPickupReady, stored.Status)

	var messages []string
	for _, n := range f.notifications(t, u.ID) {
		if n.Type == model.NotificationOrderStatus {
			messages = append(messages, n.Message)
		}
	}
	assert.Contains(t, messages, "وضعیت سفارش #"+order.ShortID()+" از «آماده» به «آماده تحویل حضوری» تغییر کرد.")
	assert.Len(t, messages, 3)

	_, err = f.orders.StartShippingPreparation(f.ctx, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderService_ExpiresOnRead(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Burundi", 10000, 10)
	f.add(t, u.ID, p.ID, 4)
	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	assert.Equal(t, 6, f.stock(t, p.ID))

	f.clock.Advance(4 * time.Minute)
	_, err := f.orders.Get(f.ctx, u.ID, false, order.ID)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.orders.Get(f.ctx, u.ID, false, order.ID)
	assert.ErrorIs(t, err, ErrOrderExpired)
	assert.Equal(t, 10, f.stock(t, p.ID))

	_, err = f.orders.Get(f.ctx, u.ID, false, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	var expiredNotes int
	for _, n := range f.notifications(t, u.ID) {
		if n.Type == model.NotificationOrderExpired {
			expiredNotes++
		}
	}
	assert.Equal(t, 1, expiredNotes)
	assert.Equal(t, []string{model.EventOrderCreated, model.EventOrderExpired}, f.pub.types())
}

func TestOrderService_List_ReportsExpired(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Tanzania", 10000, 10)

	f.add(t, u.ID, p.ID, 1)
	old := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	f.clock.Advance(4 * time.Minute)
	f.add(t, u.ID, p.ID, 2)
	recent := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	f.clock.Advance(2 * time.Minute)

	orders, expired, err := f.orders.List(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	require.Len(t, orders, 1)
	assert.Equal(t, recent.ID, orders[0].ID)
	assert.NotEqual(t, old.ID, orders[0].ID)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestOrderService_ExpireOverdue(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Uganda", 10000, 10)

	f.add(t, u.ID, p.ID, 1)
	unpaid := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	f.add(t, u.ID, p.ID, 2)
	paid := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	_, err := f.orders.MarkPaid(f.ctx, paid.ID)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	n, err := f.orders.ExpireOverdue(f.ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 8, f.stock(t, p.ID))

	_, err = f.orders.Get(f.ctx, u.ID, false, unpaid.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	got, err := f.orders.Get(f.ctx, u.ID, false, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPreparing, got.Status)
}

func TestOrderService_ExpireOverdue_SkipsFailingOrder(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Burundi", 10000, 10)
	for _, qty := range []int{1, 2} {
		u := f.user(t, model.RoleCustomer)
		addr := f.address(t, u.ID)
		f.add(t, u.ID, p.ID, qty)
		f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	}
	require.Equal(t, 7, f.stock(t, p.ID))

	f.clock.Advance(10 * time.Minute)
	boom := errors.New("connection reset")
	f.store.FailNext("Orders.GetForUpdate", boom)
	n, err := f.orders.ExpireOverdue(f.ctx, 50)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)

	n, err = f.orders.ExpireOverdue(f.ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestOrderService_TransitionOnOverdueOrderExpiresIt(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Laos", 10000, 3)
	f.add(t, u.ID, p.ID, 3)
	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)

	f.clock.Advance(time.Hour)
	_, err := f.orders.MarkPaid(f.ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderExpired)
	assert.Equal(t, 3, f.stock(t, p.ID))
}

func TestOrderService_Get_Visibility(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	other := f.user(t, model.RoleCustomer)
	staff := f.user(t, model.RoleAdmin)
	addr := f.address(t, u.ID)
	p := f.product(t, "Bolivia", 10000, 3)
	f.add(t, u.ID, p.ID, 1)
	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)

	_, err := f.orders.Get(f.ctx, other.ID, false, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	got, err := f.orders.Get(f.ctx, staff.ID, true, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestOrderService_PublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	u := f.user(t, model.RoleCustomer)
	addr := f.address(t, u.ID)
	p := f.product(t, "Mexico", 10000, 3)
	f.add(t, u.ID, p.ID, 1)

	order := f.checkout(t, u.ID, addr.ID, model.DeliveryPost)
	assert.NotEqual(t, uuid.Nil, order.ID)
}

func TestOrderConfig_DeliveryFee(t *testing.T) {
	cfg := OrderConfig{DeliveryFee: decimal.NewFromInt(50000)}
	assert.True(t, cfg.deliveryFee(decimal.Zero).IsZero())
	assert.True(t, decimal.NewFromInt(50000).Equal(cfg.deliveryFee(decimal.NewFromInt(900000))))

	cfg.FreeDeliveryThreshold = decimal.NewFromInt(500000)
	assert.True(t, cfg.deliveryFee(decimal.NewFromInt(500000)).IsZero())
	assert.True(t, decimal.NewFromInt(50000).Equal(cfg.deliveryFee(decimal.NewFromInt(499999))))
}
