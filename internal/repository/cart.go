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

// CartRepository stores carts and their items. Mutating callers lock the cart
// row first (LockOrCreate/LockByID) so one user's cart changes are serialized.
type CartRepository interface {
	LockOrCreate(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	LockByID(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	// ListItems returns the cart's items with their products attached.
	ListItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error)
	LockItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error)
	GetItemForUpdate(ctx context.Context, cartID, itemID uuid.UUID) (*model.CartItem, error)
	FindItemForUpdate(ctx context.Context, cartID, productID uuid.UUID, grindType, weight string) (*model.CartItem, error)
	CreateItem(ctx context.Context, item *model.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
	// ListStaleItems returns items not touched since before, oldest first.
	ListStaleItems(ctx context.Context, before time.Time, limit int) ([]model.CartItem, error)
}

const cartItemColumns = `id, cart_id, product_id, quantity, grind_type, weight, created_at, updated_at`

type pgCartRepo struct{ q querier }

func (r *pgCartRepo) LockOrCreate(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	_, err := r.q.Exec(ctx,
		`INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	cart, err := r.getCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, fmt.Errorf("lock cart: cart of user %s vanished", userID)
	}
	return cart, nil
}

func (r *pgCartRepo) LockByID(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	return r.getCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE id = $1 FOR UPDATE`, cartID)
}

func (r *pgCartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return r.getCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID)
}

func (r *pgCartRepo) getCart(ctx context.Context, query string, arg uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.q.QueryRow(ctx, query, arg).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (r *pgCartRepo) ListItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.grind_type, ci.weight, ci.created_at, ci.updated_at,
		        p.id, p.category_id, p.name, p.description, p.price, p.stock, p.grind_options,
		        p.weight_options, p.weight_multipliers, p.is_active, p.created_at, p.updated_at
		 FROM cart_items ci JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1 ORDER BY ci.created_at, ci.id`, cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var item model.CartItem
		product, err := scanProduct(prefixedScanner{rows, []any{
			&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.GrindType, &item.Weight,
			&item.CreatedAt, &item.UpdatedAt,
		}})
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.Product = product
		items = append(items, item)
	}
	return items, rows.Err()
}

// prefixedScanner scans leading columns into fixed destinations before the
// destinations supplied by the wrapped scan function.
type prefixedScanner struct {
	row    rowScanner
	prefix []any
}

func (s prefixedScanner) Scan(dest ...any) error {
	return s.row.Scan(append(s.prefix, dest...)...)
}

func (r *pgCartRepo) LockItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY id FOR UPDATE`, cartID)
	if err != nil {
		return nil, fmt.Errorf("lock cart items: %w", err)
	}
	defer rows.Close()
	return collectCartItems(rows)
}

func (r *pgCartRepo) GetItemForUpdate(ctx context.Context, cartID, itemID uuid.UUID) (*model.CartItem, error) {
	return r.getItem(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE id = $1 AND cart_id = $2 FOR UPDATE`,
		itemID, cartID)
}

func (r *pgCartRepo) FindItemForUpdate(ctx context.Context, cartID, productID uuid.UUID, grindType, weight string) (*model.CartItem, error) {
	return r.getItem(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items
		 WHERE cart_id = $1 AND product_id = $2 AND grind_type = $3 AND weight = $4 FOR UPDATE`,
		cartID, productID, grindType, weight)
}

func (r *pgCartRepo) getItem(ctx context.Context, query string, args ...any) (*model.CartItem, error) {
	var item model.CartItem
	err := r.q.QueryRow(ctx, query, args...).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
		&item.GrindType, &item.Weight, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return &item, nil
}

func (r *pgCartRepo) CreateItem(ctx context.Context, item *model.CartItem) error {
	item.ID = uuid.New()
	err := r.q.QueryRow(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, quantity, grind_type, weight, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING created_at, updated_at`,
		item.ID, item.CartID, item.ProductID, item.Quantity, item.GrindType, item.Weight,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	ct, err := r.q.Exec(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = NOW() WHERE id = $1`, itemID, quantity)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) Clear(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *pgCartRepo) ListStaleItems(ctx context.Context, before time.Time, limit int) ([]model.CartItem, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE updated_at < $1 ORDER BY updated_at LIMIT $2`,
		before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale cart items: %w", err)
	}
	defer rows.Close()
	return collectCartItems(rows)
}

func collectCartItems(rows pgx.Rows) ([]model.CartItem, error) {
	var items []model.CartItem
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
			&item.GrindType, &item.Weight, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
