package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/coffeeshop/internal/events"
	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository"
)

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrAddressNotFound       = errors.New("address not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderExpired          = errors.New("order payment window expired")
	ErrInvalidDeliveryMethod = errors.New("invalid delivery method")
)

type OrderConfig struct {
	DeliveryFee decimal.Decimal
	// FreeDeliveryThreshold waives the fee for subtotals at or above it. Zero disables it.
	FreeDeliveryThreshold decimal.Decimal
	WelcomeCredit         decimal.Decimal
	PaymentGrace          time.Duration
}

func (c OrderConfig) deliveryFee(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	if c.FreeDeliveryThreshold.IsPositive() && subtotal.GreaterThanOrEqual(c.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return c.DeliveryFee
}

type CheckoutInput struct {
	DeliveryMethod model.DeliveryMethod
	AddressID      uuid.UUID
	PostalCode     string
	Notes          string
}

type OrderService struct {
	store     repository.TxStore
	cfg       OrderConfig
	publisher events.Publisher
	cache     *ProductCache
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrderService(store repository.TxStore, cfg OrderConfig, publisher events.Publisher, cache *ProductCache, logger *slog.Logger) *OrderService {
	return &OrderService{store: store, cfg: cfg, publisher: publisher, cache: cache, logger: logger, now: time.Now}
}

func (s *OrderService) PaymentGrace() time.Duration { return s.cfg.PaymentGrace }

// Checkout turns the cart into a pending_payment order. Cart quantities were
// taken out of stock when they were added, so stock is not touched here.
func (s *OrderService) Checkout(ctx context.Context, userID uuid.UUID, in CheckoutInput) (*model.Order, error) {
	method := in.DeliveryMethod
	if method == "" {
		method = model.DeliveryPost
	}
	if !method.Valid() {
		return nil, ErrInvalidDeliveryMethod
	}

	var order *model.Order
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		customer, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		profile, err := tx.Profiles().LockOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		cart, err := tx.Carts().LockOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		items, err := tx.Carts().LockItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		address, err := tx.Addresses().GetByID(ctx, userID, in.AddressID)
		if err != nil {
			return err
		}
		if address == nil {
			return ErrAddressNotFound
		}

		products, err := lockProducts(ctx, tx, cartProductIDs(items))
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		lines := make([]model.OrderItem, 0, len(items))
		for _, item := range items {
			p, ok := products[item.ProductID]
			if !ok {
				return &InsufficientStockError{ProductID: item.ProductID}
			}
			if !p.IsActive || !p.OffersVariant(item.GrindType, item.Weight) {
				return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name}
			}
			line := model.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    item.Quantity,
				Price:       p.UnitPrice(item.Weight),
				GrindType:   item.GrindType,
				Weight:      item.Weight,
			}
			subtotal = subtotal.Add(line.TotalPrice())
			lines = append(lines, line)
		}

		fee := s.cfg.deliveryFee(subtotal)
		gross := subtotal.Add(fee)

		awarded, err := ensureWelcomeCredit(ctx, tx, profile, s.cfg.WelcomeCredit)
		if err != nil {
			return err
		}
		credit := profile.ConsumeCredit(gross, s.now())
		if awarded || credit.IsPositive() {
			if err := tx.Profiles().Update(ctx, profile); err != nil {
				return err
			}
		}

		postal := in.PostalCode
		if postal == "" {
			postal = address.PostalCode
		}
		phone := profile.PhoneNumber
		if phone == "" {
			phone = address.Phone
		}
		order = &model.Order{
			UserID:          userID,
			Status:          model.OrderStatusPendingPayment,
			DeliveryMethod:  method,
			Subtotal:        subtotal,
			DeliveryFee:     fee,
			CreditApplied:   credit,
			TotalAmount:     gross.Sub(credit),
			ShippingAddress: shippingLabel(address),
			PostalCode:      postal,
			PhoneNumber:     phone,
			Notes:           in.Notes,
			Items:           lines,
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := tx.Carts().Clear(ctx, cart.ID); err != nil {
			return err
		}
		return notifyOrderCreated(ctx, tx, order, customer)
	})
	if err != nil {
		return nil, wrapTx("checkout", err)
	}

	s.logger.Info("order created",
		slog.String("order_id", order.ID.String()),
		slog.String("user_id", userID.String()),
		slog.Int64("total", order.TotalAmount.IntPart()),
		slog.Int64("credit_applied", order.CreditApplied.IntPart()),
	)
	s.publish(ctx, model.NewOrderEvent(model.EventOrderCreated, order, s.now()))
	return order, nil
}

// Get returns an order the viewer may see. Staff may see any order. An unpaid
// order past its grace period is expired on the spot and reported as ErrOrderExpired.
func (s *OrderService) Get(ctx context.Context, viewerID uuid.UUID, staff bool, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil || (!staff && order.UserID != viewerID) {
		return nil, ErrOrderNotFound
	}
	if !order.PaymentOverdue(s.now(), s.cfg.PaymentGrace) {
		return order, nil
	}

	expired, err := s.expire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrOrderExpired
	}
	// Paid while we were looking; read it again.
	order, err = s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// List returns the user's orders newest first, after expiring the overdue
// ones. The second value is how many were expired by this call.
func (s *OrderService) List(ctx context.Context, userID uuid.UUID) ([]model.Order, int, error) {
	orders, err := s.store.Orders().ListByUserID(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	now := s.now()
	kept := orders[:0]
	expiredCount := 0
	for _, o := range orders {
		if o.PaymentOverdue(now, s.cfg.PaymentGrace) {
			expired, err := s.expire(ctx, o.ID)
			if err != nil {
				return nil, 0, err
			}
			if expired {
				expiredCount++
				continue
			}
		}
		kept = append(kept, o)
	}
	return kept, expiredCount, nil
}

// ExpireOverdue expires up to limit unpaid orders whose grace period has passed.
// An order that fails is logged and skipped; the failures are returned joined.
func (s *OrderService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.Orders().ListOverdue(ctx, s.now().Add(-s.cfg.PaymentGrace), limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue orders: %w", err)
	}
	n := 0
	var errs []error
	for _, id := range ids {
		expired, err := s.expire(ctx, id)
		if err != nil {
			s.logger.Error("expire overdue order", slog.String("order_id", id.String()), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		if expired {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// expire returns the order's quantities to stock and deletes it, provided it
// is still unpaid and overdue once locked.
func (s *OrderService) expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var (
		expired *model.Order
		ids     []uuid.UUID
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		expired = nil
		order, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil || order == nil {
			return err
		}
		if !order.PaymentOverdue(s.now(), s.cfg.PaymentGrace) {
			return nil
		}

		ids = orderProductIDs(order.Items)
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, ok := products[item.ProductID]; !ok {
				continue
			}
			if err := tx.Products().AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if err := tx.Orders().Delete(ctx, order.ID); err != nil {
			return err
		}
		if err := notifyOrderExpired(ctx, tx, order); err != nil {
			return err
		}
		expired = order
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("expire order %s: %w", orderID, err)
	}
	if expired == nil {
		return false, nil
	}

	s.cache.Invalidate(ctx, ids...)
	s.logger.Info("unpaid order expired",
		slog.String("order_id", orderID.String()),
		slog.String("user_id", expired.UserID.String()),
	)
	s.publish(ctx, model.NewOrderEvent(model.EventOrderExpired, expired, s.now()))
	return true, nil
}

// Transition moves an order to status to. Reaching ready on a pickup order
// continues straight to pickup_ready in the same transaction; every step is
// persisted and notified on its own.
func (s *OrderService) Transition(ctx context.Context, orderID uuid.UUID, to model.OrderStatus) (*model.Order, error) {
	type change struct{ from, to model.OrderStatus }
	var (
		order   *model.Order
		changes []change
		overdue bool
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.PaymentOverdue(s.now(), s.cfg.PaymentGrace) {
			overdue = true
			return nil
		}
		if !order.CanTransitionTo(to) {
			return &TransitionError{From: order.Status, To: to}
		}

		step := func(next model.OrderStatus) error {
			from := order.Status
			if err := tx.Orders().UpdateStatus(ctx, order.ID, next); err != nil {
				return err
			}
			if err := notifyStatusChanged(ctx, tx, order, from, next); err != nil {
				return err
			}
			order.Status = next
			changes = append(changes, change{from, next})
			return nil
		}
		if err := step(to); err != nil {
			return err
		}
		if to == model.OrderStatusReady && order.DeliveryMethod == model.DeliveryPickup {
			return step(model.OrderStatusPickupReady)
		}
		return nil
	})
	if err != nil {
		return nil, wrapTx("transition order", err)
	}
	if overdue {
		if _, err := s.expire(ctx, orderID); err != nil {
			return nil, err
		}
		return nil, ErrOrderExpired
	}

	for _, c := range changes {
		s.logger.Info("order status changed",
			slog.String("order_id", orderID.String()),
			slog.String("from", string(c.from)),
			slog.String("to", string(c.to)),
		)
		event := model.NewOrderEvent(model.EventOrderStatusChanged, order, s.now())
		event.OldStatus, event.NewStatus = c.from, c.to
		s.publish(ctx, event)
	}
	return order, nil
}

func (s *OrderService) MarkPaid(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return s.Transition(ctx, orderID, model.OrderStatusPreparing)
}

func (s *OrderService) MarkReady(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return s.Transition(ctx, orderID, model.OrderStatusReady)
}

func (s *OrderService) StartShippingPreparation(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return s.Transition(ctx, orderID, model.OrderStatusShippingPreparation)
}

func (s *OrderService) MarkInTransit(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return s.Transition(ctx, orderID, model.OrderStatusInTransit)
}

// publish is best effort: the business change is already committed.
func (s *OrderService) publish(ctx context.Context, event model.OrderEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish order event",
			slog.String("event_id", event.EventID.String()),
			slog.String("type", event.Type),
			slog.String("order_id", event.OrderID.String()),
			slog.Any("error", err),
		)
	}
}

// lockProducts locks the products in id order and indexes them. Deleted products are absent.
func lockProducts(ctx context.Context, tx repository.Store, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	locked, err := tx.Products().LockMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Product, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}
	return byID, nil
}

func cartProductIDs(items []model.CartItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return sortedUnique(ids)
}

func orderProductIDs(items []model.OrderItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return sortedUnique(ids)
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(ids)
}

// shippingLabel renders "title - street - city - province", skipping blanks.
func shippingLabel(a *model.UserAddress) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Title, a.Street, a.City, a.Province} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}
