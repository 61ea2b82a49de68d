package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/coffeeshop/internal/model"
)

type OrderRepository interface {
	// Create inserts the order together with its items.
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListOverdue returns ids of pending_payment orders created before the cutoff.
	ListOverdue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

const orderColumns = `id, user_id, status, delivery_method, subtotal, delivery_fee, credit_applied,
	total_amount, shipping_address, postal_code, phone_number, notes, created_at, updated_at`

type pgOrderRepo struct{ q querier }

func scanOrder(row rowScanner, o *model.Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.Status, &o.DeliveryMethod, &o.Subtotal, &o.DeliveryFee,
		&o.CreditApplied, &o.TotalAmount, &o.ShippingAddress, &o.PostalCode, &o.PhoneNumber, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt)
}

func (r *pgOrderRepo) Create(ctx context.Context, order *model.Order) error {
	order.ID = uuid.New()
	err := r.q.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, status, delivery_method, subtotal, delivery_fee, credit_applied,
		 total_amount, shipping_address, postal_code, phone_number, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.Status, order.DeliveryMethod, order.Subtotal, order.DeliveryFee,
		order.CreditApplied, order.TotalAmount, order.ShippingAddress, order.PostalCode, order.PhoneNumber,
		order.Notes,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.ID = uuid.New()
		item.OrderID = order.ID
		_, err = r.q.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price, grind_type, weight)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price,
			item.GrindType, item.Weight,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *pgOrderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgOrderRepo) get(ctx context.Context, query string, id uuid.UUID) (*model.Order, error) {
	order := &model.Order{}
	if err := scanOrder(r.q.QueryRow(ctx, query, id), order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.q.Query(ctx,
		`SELECT id, product_id, product_name, quantity, price, grind_type, weight
		 FROM order_items WHERE order_id = $1 ORDER BY product_id, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price,
			&item.GrindType, &item.Weight); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	ct, err := r.q.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgOrderRepo) ListOverdue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id FROM orders WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		model.OrderStatusPendingPayment, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
