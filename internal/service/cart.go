package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must not be negative")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidVariant   = errors.New("product does not offer this variant")
)

type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	GrindType string
	Weight    string
}

type CartSummary struct {
	Total decimal.Decimal
	Count int
}

type ItemUpdate struct {
	CartSummary
	ItemTotal decimal.Decimal
	Removed   bool
}

// CartService keeps cart quantities and product stock in step: every unit in
// a cart has already been taken out of stock.
type CartService struct {
	store          repository.TxStore
	cache          *ProductCache
	reservationTTL time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func NewCartService(store repository.TxStore, cache *ProductCache, reservationTTL time.Duration, logger *slog.Logger) *CartService {
	return &CartService{store: store, cache: cache, reservationTTL: reservationTTL, logger: logger, now: time.Now}
}

func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, in AddItemInput) (*CartSummary, error) {
	if in.Quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	grind, weight := in.GrindType, in.Weight
	if grind == "" {
		grind = model.DefaultGrindType
	}
	if weight == "" {
		weight = model.DefaultWeight
	}

	var summary *CartSummary
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		cart, err := tx.Carts().LockOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		if in.Quantity == 0 {
			summary, err = summarize(ctx, tx, cart.ID)
			return err
		}

		item, err := tx.Carts().FindItemForUpdate(ctx, cart.ID, in.ProductID, grind, weight)
		if err != nil {
			return err
		}
		product, err := tx.Products().GetForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if product == nil || !product.IsActive {
			return ErrProductNotFound
		}
		if !model.IsKnownGrindType(grind) || !model.IsKnownWeight(weight) || !product.OffersVariant(grind, weight) {
			return ErrInvalidVariant
		}

		if err := reserve(ctx, tx, product, in.Quantity); err != nil {
			return err
		}
		if item == nil {
			err = tx.Carts().CreateItem(ctx, &model.CartItem{
				CartID: cart.ID, ProductID: product.ID, Quantity: in.Quantity, GrindType: grind, Weight: weight,
			})
		} else {
			err = tx.Carts().UpdateItemQuantity(ctx, item.ID, item.Quantity+in.Quantity)
		}
		if err != nil {
			return err
		}

		summary, err = summarize(ctx, tx, cart.ID)
		return err
	})
	if err != nil {
		return nil, wrapTx("add to cart", err)
	}
	if in.Quantity > 0 {
		s.cache.Invalidate(ctx, in.ProductID)
	}
	return summary, nil
}

func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*ItemUpdate, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	var (
		result    *ItemUpdate
		productID uuid.UUID
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		cart, err := tx.Carts().LockOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		item, err := tx.Carts().GetItemForUpdate(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrCartItemNotFound
		}
		product, err := tx.Products().GetForUpdate(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return ErrProductNotFound
		}
		productID = product.ID

		delta := quantity - item.Quantity
		if delta > 0 && !product.IsActive {
			return ErrProductNotFound
		}
		if err := reserve(ctx, tx, product, delta); err != nil {
			return err
		}

		result = &ItemUpdate{ItemTotal: product.UnitPrice(item.Weight).Mul(decimal.NewFromInt(int64(quantity)))}
		if quantity == 0 {
			result.Removed = true
			err = tx.Carts().DeleteItem(ctx, item.ID)
		} else {
			err = tx.Carts().UpdateItemQuantity(ctx, item.ID, quantity)
		}
		if err != nil {
			return err
		}

		summary, err := summarize(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		result.CartSummary = *summary
		return nil
	})
	if err != nil {
		return nil, wrapTx("update cart item", err)
	}
	s.cache.Invalidate(ctx, productID)
	return result, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartSummary, error) {
	var (
		summary   *CartSummary
		productID uuid.UUID
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		cart, err := tx.Carts().LockOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		item, err := tx.Carts().GetItemForUpdate(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrCartItemNotFound
		}
		if err := release(ctx, tx, item); err != nil {
			return err
		}
		productID = item.ProductID
		if err := tx.Carts().DeleteItem(ctx, item.ID); err != nil {
			return err
		}
		summary, err = summarize(ctx, tx, cart.ID)
		return err
	})
	if err != nil {
		return nil, wrapTx("remove from cart", err)
	}
	s.cache.Invalidate(ctx, productID)
	return summary, nil
}

// GetCart returns the user's cart with products attached; a user without a cart gets an empty one.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.store.Carts().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return &model.Cart{UserID: userID}, nil
	}
	cart.Items, err = s.store.Carts().ListItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	return cart, nil
}

func (s *CartService) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return 0, err
	}
	return cart.Count(), nil
}

// ReclaimAbandoned deletes cart items untouched for longer than the
// reservation TTL and returns their quantity to stock.
func (s *CartService) ReclaimAbandoned(ctx context.Context, limit int) (int, error) {
	before := s.now().Add(-s.reservationTTL)
	stale, err := s.store.Carts().ListStaleItems(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale cart items: %w", err)
	}

	reclaimed := 0
	var errs []error
	for _, candidate := range stale {
		var released *model.CartItem
		err := s.store.WithinTx(ctx, func(tx repository.Store) error {
			released = nil
			cart, err := tx.Carts().LockByID(ctx, candidate.CartID)
			if err != nil || cart == nil {
				return err
			}
			item, err := tx.Carts().GetItemForUpdate(ctx, cart.ID, candidate.ID)
			if err != nil || item == nil || !item.UpdatedAt.Before(before) {
				return err
			}
			if err := release(ctx, tx, item); err != nil {
				return err
			}
			if err := tx.Carts().DeleteItem(ctx, item.ID); err != nil {
				return err
			}
			released = item
			return nil
		})
		if err != nil {
			s.logger.Error("reclaim abandoned cart item", slog.String("item_id", candidate.ID.String()), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("reclaim cart item %s: %w", candidate.ID, err))
			continue
		}
		if released != nil {
			reclaimed++
			s.cache.Invalidate(ctx, released.ProductID)
			s.logger.Info("abandoned cart item reclaimed",
				slog.String("item_id", released.ID.String()),
				slog.String("product_id", released.ProductID.String()),
				slog.Int("quantity", released.Quantity),
			)
		}
	}
	return reclaimed, errors.Join(errs...)
}

// reserve takes delta units out of stock, or returns -delta units when delta
// is negative. The product row must already be locked.
func reserve(ctx context.Context, tx repository.Store, product *model.Product, delta int) error {
	if delta == 0 {
		return nil
	}
	if delta > 0 && product.Stock < delta {
		return &InsufficientStockError{ProductID: product.ID, ProductName: product.Name, Available: product.Stock}
	}
	if err := tx.Products().AdjustStock(ctx, product.ID, -delta); err != nil {
		return err
	}
	product.Stock -= delta
	return nil
}

// release returns an item's full quantity to stock. Products deleted since are skipped.
func release(ctx context.Context, tx repository.Store, item *model.CartItem) error {
	product, err := tx.Products().GetForUpdate(ctx, item.ProductID)
	if err != nil {
		return err
	}
	if product == nil {
		return nil
	}
	return reserve(ctx, tx, product, -item.Quantity)
}

func summarize(ctx context.Context, tx repository.Store, cartID uuid.UUID) (*CartSummary, error) {
	items, err := tx.Carts().ListItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	cart := model.Cart{Items: items}
	return &CartSummary{Total: cart.Total(), Count: cart.Count()}, nil
}

// wrapTx leaves domain errors untouched so callers can match them, and wraps
// everything else with the operation name.
func wrapTx(op string, err error) error {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var domainErrors = []error{
	ErrInvalidQuantity, ErrCartItemNotFound, ErrInvalidVariant, ErrProductNotFound,
	ErrEmptyCart, ErrAddressNotFound, ErrInvalidDeliveryMethod, ErrOrderNotFound,
	ErrOrderExpired, ErrInvalidTransition,
}
