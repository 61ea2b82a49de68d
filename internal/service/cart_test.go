package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/coffeeshop/internal/model"
)

func TestCartService_AddItem_ReservesStock(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Ethiopia Yirgacheffe", 10000, 5)

	summary := f.add(t, u.ID, p.ID, 3)
	assert.True(t, decimal.NewFromInt(30000).Equal(summary.Total))
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 2, f.stock(t, p.ID))

	_, err := f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: 3, Weight: "250g"})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, p.ID, stockErr.ProductID)

	assert.Equal(t, 2, f.stock(t, p.ID))
	count, err := f.cart.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCartService_AddItem_MergesSameVariant(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Colombia Supremo", 12000, 20)

	f.add(t, u.ID, p.ID, 1)
	f.add(t, u.ID, p.ID, 2)
	_, err := f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: 1, GrindType: "espresso", Weight: "500g"})
	require.NoError(t, err)

	cart, err := f.cart.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	byGrind := map[string]model.CartItem{}
	for _, item := range cart.Items {
		byGrind[item.GrindType] = item
	}
	assert.Equal(t, 3, byGrind[model.DefaultGrindType].Quantity)
	assert.Equal(t, model.DefaultWeight, byGrind[model.DefaultGrindType].Weight)
	assert.Equal(t, 1, byGrind["espresso"].Quantity)
	// 3*12000 + 1*12000*1.9
	assert.True(t, decimal.NewFromInt(58800).Equal(cart.Total()), cart.Total().String())
	assert.Equal(t, 16, f.stock(t, p.ID))
}

func TestCartService_AddItem_Quantity(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Brazil Santos", 9000, 4)
	f.add(t, u.ID, p.ID, 1)

	summary := f.add(t, u.ID, p.ID, 0)
	assert.Equal(t, 1, summary.Count)
	assert.True(t, decimal.NewFromInt(9000).Equal(summary.Total))

	_, err := f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: -1})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, 3, f.stock(t, p.ID))
}

func TestCartService_AddItem_Rejects(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Kenya AA", 15000, 10)
	p.GrindOptions = []string{"espresso"}
	require.NoError(t, f.store.Products().Update(f.ctx, p))

	inactive := f.product(t, "Old Blend", 5000, 10)
	inactive.IsActive = false
	require.NoError(t, f.store.Products().Update(f.ctx, inactive))

	tests := []struct {
		name string
		in   AddItemInput
		want error
	}{
		{"unknown product", AddItemInput{ProductID: uuid.New(), Quantity: 1}, ErrProductNotFound},
		{"inactive product", AddItemInput{ProductID: inactive.ID, Quantity: 1}, ErrProductNotFound},
		{"grind not offered", AddItemInput{ProductID: p.ID, Quantity: 1, GrindType: "turkish"}, ErrInvalidVariant},
		{"unknown weight", AddItemInput{ProductID: p.ID, Quantity: 1, GrindType: "espresso", Weight: "2kg"}, ErrInvalidVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cart.AddItem(f.ctx, u.ID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 10, f.stock(t, p.ID))
	assert.Equal(t, 10, f.stock(t, inactive.ID))
}

func TestCartService_UpdateItem(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Guatemala", 10000, 10)
	f.add(t, u.ID, p.ID, 2)
	cart, err := f.cart.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	res, err := f.cart.UpdateItem(f.ctx, u.ID, itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count)
	assert.True(t, decimal.NewFromInt(50000).Equal(res.ItemTotal))
	assert.Equal(t, 5, f.stock(t, p.ID))

	res, err = f.cart.UpdateItem(f.ctx, u.ID, itemID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 9, f.stock(t, p.ID))

	_, err = f.cart.UpdateItem(f.ctx, u.ID, itemID, 11)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 9, stockErr.Available)

	_, err = f.cart.UpdateItem(f.ctx, u.ID, itemID, -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	res, err = f.cart.UpdateItem(f.ctx, u.ID, itemID, 0)
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCartService_ForeignItemIsNotFound(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, model.RoleCustomer)
	other := f.user(t, model.RoleCustomer)
	p := f.product(t, "Sumatra", 10000, 10)
	f.add(t, owner.ID, p.ID, 2)
	cart, err := f.cart.GetCart(f.ctx, owner.ID)
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	_, err = f.cart.UpdateItem(f.ctx, other.ID, itemID, 1)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
	_, err = f.cart.RemoveItem(f.ctx, other.ID, itemID)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestCartService_RemoveItem_RestoresStock(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Yemen Mocha", 20000, 6)
	q := f.product(t, "House Blend", 8000, 6)
	f.add(t, u.ID, p.ID, 4)
	f.add(t, u.ID, q.ID, 1)
	cart, err := f.cart.GetCart(f.ctx, u.ID)
	require.NoError(t, err)

	var itemID uuid.UUID
	for _, item := range cart.Items {
		if item.ProductID == p.ID {
			itemID = item.ID
		}
	}
	summary, err := f.cart.RemoveItem(f.ctx, u.ID, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.True(t, decimal.NewFromInt(8000).Equal(summary.Total))
	assert.Equal(t, 6, f.stock(t, p.ID))
}

func TestCartService_StockConservation(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Costa Rica", 10000, 30)

	f.add(t, u.ID, p.ID, 4)
	_, err := f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: 3, GrindType: "filter"})
	require.NoError(t, err)
	_, err = f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: 2, Weight: "1kg"})
	require.NoError(t, err)

	cart, err := f.cart.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	for i, item := range cart.Items {
		switch i {
		case 0:
			_, err = f.cart.UpdateItem(f.ctx, u.ID, item.ID, item.Quantity+5)
		case 1:
			_, err = f.cart.RemoveItem(f.ctx, u.ID, item.ID)
		default:
			_, err = f.cart.UpdateItem(f.ctx, u.ID, item.ID, 1)
		}
		require.NoError(t, err)
	}
	_, err = f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: 100})
	require.Error(t, err)

	cart, err = f.cart.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, f.stock(t, p.ID)+cart.Count())
}

func TestCartService_ConcurrentAddsNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Geisha", 90000, 10)

	const buyers = 25
	users := make([]uuid.UUID, buyers)
	for i := range users {
		users[i] = f.user(t, model.RoleCustomer).ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for _, id := range users {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := f.cart.AddItem(f.ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr):
				assert.Equal(t, 0, stockErr.Available)
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, buyers-10, refused)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestCartService_AddItem_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Panama", 30000, 5)

	boom := errors.New("connection reset")
	f.store.FailNext("Carts.CreateItem", boom)
	_, err := f.cart.AddItem(f.ctx, u.ID, AddItemInput{ProductID: p.ID, Quantity: 2})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, f.stock(t, p.ID))

	count, err := f.cart.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCartService_ReclaimAbandoned(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, model.RoleCustomer)
	p := f.product(t, "Rwanda", 10000, 10)
	f.add(t, u.ID, p.ID, 4)

	f.clock.Advance(23 * time.Hour)
	fresh := f.user(t, model.RoleCustomer)
	f.add(t, fresh.ID, p.ID, 1)

	n, err := f.cart.ReclaimAbandoned(f.ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * time.Hour)
	n, err = f.cart.ReclaimAbandoned(f.ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 9, f.stock(t, p.ID))

	count, err := f.cart.Count(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = f.cart.Count(f.ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCartService_ReclaimAbandoned_SkipsFailingItem(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Tanzania", 10000, 10)
	f.add(t, f.user(t, model.RoleCustomer).ID, p.ID, 2)
	f.add(t, f.user(t, model.RoleCustomer).ID, p.ID, 3)

	f.clock.Advance(25 * time.Hour)
	boom := errors.New("connection reset")
	f.store.FailNext("Carts.LockByID", boom)
	n, err := f.cart.ReclaimAbandoned(f.ctx, 100)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)

	n, err = f.cart.ReclaimAbandoned(f.ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCartService_GetCart_Empty(t *testing.T) {
	f := newFixture(t)
	cart, err := f.cart.GetCart(f.ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.Total().IsZero())
}
