package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/coffeeshop/internal/model"
	"github.com/flicky/coffeeshop/internal/repository"
)

var ErrNotificationNotFound = errors.New("notification not found")

const notificationListLimit = 50

// NotificationService persists in-app notifications. The order lifecycle writes
// them inside its own transaction through the notify* helpers.
type NotificationService struct {
	store repository.Store
}

func NewNotificationService(store repository.Store) *NotificationService {
	return &NotificationService{store: store}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID) ([]model.Notification, int, error) {
	list, err := s.store.Notifications().ListByUserID(ctx, userID, notificationListLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.store.Notifications().CountUnread(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return list, unread, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.store.Notifications().MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.store.Notifications().MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return n, nil
}

// notifyOrderCreated tells the customer and every staff member about a new order.
func notifyOrderCreated(ctx context.Context, tx repository.Store, order *model.Order, customer *model.User) error {
	total := order.TotalAmount.IntPart()
	err := tx.Notifications().Create(ctx, &model.Notification{
		UserID:  order.UserID,
		Type:    model.NotificationOrderNew,
		Title:   fmt.Sprintf("سفارش جدید ثبت شد (#%s)", order.ShortID()),
		Message: fmt.Sprintf("سفارش شما با مبلغ %d تومان ثبت شد.", total),
		OrderID: &order.ID,
	})
	if err != nil {
		return fmt.Errorf("notify customer: %w", err)
	}

	staff, err := tx.Users().ListStaff(ctx)
	if err != nil {
		return fmt.Errorf("list staff: %w", err)
	}
	who := order.UserID.String()
	if customer != nil {
		who = customer.Email
	}
	for _, u := range staff {
		err := tx.Notifications().Create(ctx, &model.Notification{
			UserID:  u.ID,
			Type:    model.NotificationOrderNew,
			Title:   fmt.Sprintf("سفارش جدید #%s", order.ShortID()),
			Message: fmt.Sprintf("کاربر %s سفارشی به مبلغ %d ثبت کرد.", who, total),
			OrderID: &order.ID,
		})
		if err != nil {
			return fmt.Errorf("notify staff %s: %w", u.ID, err)
		}
	}
	return nil
}

func notifyStatusChanged(ctx context.Context, tx repository.Store, order *model.Order, from, to model.OrderStatus) error {
	err := tx.Notifications().Create(ctx, &model.Notification{
		UserID:  order.UserID,
		Type:    model.NotificationOrderStatus,
		Title:   "به‌روزرسانی وضعیت سفارش",
		Message: fmt.Sprintf("وضعیت سفارش #%s از «%s» به «%s» تغییر کرد.", order.ShortID(), from.Label(), to.Label()),
		OrderID: &order.ID,
	})
	if err != nil {
		return fmt.Errorf("notify status change: %w", err)
	}
	return nil
}

// notifyOrderExpired carries no order id: the order row is gone.
func notifyOrderExpired(ctx context.Context, tx repository.Store, order *model.Order) error {
	err := tx.Notifications().Create(ctx, &model.Notification{
		UserID:  order.UserID,
		Type:    model.NotificationOrderExpired,
		Title:   "سفارش منقضی شد",
		Message: fmt.Sprintf("سفارش #%s به دلیل عدم پرداخت در مهلت مقرر لغو شد.", order.ShortID()),
	})
	if err != nil {
		return fmt.Errorf("notify expiry: %w", err)
	}
	return nil
}
