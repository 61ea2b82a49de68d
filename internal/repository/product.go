package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/coffeeshop/internal/model"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// GetForUpdate row-locks the product until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error)
	// LockMany row-locks the given products in ascending id order. Missing ids are skipped.
	LockMany(ctx context.Context, ids []uuid.UUID) ([]model.Product, error)
	List(ctx context.Context, params ProductListParams) ([]model.Product, int, error)
	// Update writes the catalog fields. Stock is left alone; use AdjustStock.
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	// AdjustStock adds delta (possibly negative) to stock and fails with
	// ErrStockUnderflow instead of letting it go below zero.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) error
}

type ProductListParams struct {
	Limit      int
	Offset     int
	Search     string
	Sort       string
	Order      string
	CategoryID *uuid.UUID
	ActiveOnly bool
}

const productColumns = `id, category_id, name, description, price, stock, grind_options,
	weight_options, weight_multipliers, is_active, created_at, updated_at`

type pgProductRepo struct{ q querier }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var multipliers []byte
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.GrindOptions, &p.WeightOptions, &multipliers, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(multipliers) > 0 {
		if err := json.Unmarshal(multipliers, &p.WeightMultipliers); err != nil {
			return nil, fmt.Errorf("decode weight multipliers: %w", err)
		}
	}
	return p, nil
}

func encodeMultipliers(m map[string]decimal.Decimal) ([]byte, error) {
	if m == nil {
		m = map[string]decimal.Decimal{}
	}
	return json.Marshal(m)
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	multipliers, err := encodeMultipliers(product.WeightMultipliers)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	query := `INSERT INTO products (id, category_id, name, description, price, stock, grind_options,
			  weight_options, weight_multipliers, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING created_at, updated_at`
	err = r.q.QueryRow(ctx, query,
		product.ID, product.CategoryID, product.Name, product.Description, product.Price, product.Stock,
		product.GrindOptions, product.WeightOptions, multipliers, product.IsActive,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r *pgProductRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgProductRepo) get(ctx context.Context, query string, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) LockMany(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *pgProductRepo) List(ctx context.Context, params ProductListParams) ([]model.Product, int, error) {
	allowedSorts := map[string]bool{"name": true, "price": true, "stock": true, "created_at": true}
	sort := params.Sort
	if !allowedSorts[sort] {
		sort = "created_at"
	}
	order := params.Order
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	where := `($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		AND ($2::uuid IS NULL OR category_id = $2)
		AND (NOT $3 OR is_active)`

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+where,
		params.Search, params.CategoryID, params.ActiveOnly,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY %s %s LIMIT $4 OFFSET $5`,
		productColumns, where, sort, order)
	rows, err := r.q.Query(ctx, query,
		params.Search, params.CategoryID, params.ActiveOnly, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

func (r *pgProductRepo) Update(ctx context.Context, product *model.Product) error {
	multipliers, err := encodeMultipliers(product.WeightMultipliers)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	query := `UPDATE products SET category_id=$2, name=$3, description=$4, price=$5,
			  grind_options=$6, weight_options=$7, weight_multipliers=$8, is_active=$9, updated_at=NOW()
			  WHERE id=$1 RETURNING stock, updated_at`
	err = r.q.QueryRow(ctx, query,
		product.ID, product.CategoryID, product.Name, product.Description, product.Price,
		product.GrindOptions, product.WeightOptions, multipliers, product.IsActive,
	).Scan(&product.Stock, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgProductRepo) AdjustStock(ctx context.Context, id uuid.UUID, delta int) error {
	ct, err := r.q.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1 AND stock + $2 >= 0`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("adjust stock of product %s by %d: %w", id, delta, ErrStockUnderflow)
	}
	return nil
}
