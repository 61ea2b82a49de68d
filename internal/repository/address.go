package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/coffeeshop/internal/model"
)

type AddressRepository interface {
	Create(ctx context.Context, address *model.UserAddress) error
	// GetByID only finds addresses owned by userID.
	GetByID(ctx context.Context, userID, id uuid.UUID) (*model.UserAddress, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.UserAddress, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int, error)
}

const addressColumns = `id, user_id, title, province, city, street, postal_code, phone, created_at`

type pgAddressRepo struct{ q querier }

func scanAddress(row rowScanner, a *model.UserAddress) error {
	return row.Scan(&a.ID, &a.UserID, &a.Title, &a.Province, &a.City, &a.Street, &a.PostalCode, &a.Phone, &a.CreatedAt)
}

func (r *pgAddressRepo) Create(ctx context.Context, address *model.UserAddress) error {
	address.ID = uuid.New()
	err := r.q.QueryRow(ctx,
		`INSERT INTO user_addresses (id, user_id, title, province, city, street, postal_code, phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING created_at`,
		address.ID, address.UserID, address.Title, address.Province, address.City, address.Street,
		address.PostalCode, address.Phone,
	).Scan(&address.CreatedAt)
	if err != nil {
		return fmt.Errorf("create address: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.UserAddress, error) {
	a := &model.UserAddress{}
	err := scanAddress(r.q.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM user_addresses WHERE id = $1 AND user_id = $2`, id, userID), a)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

func (r *pgAddressRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.UserAddress, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+addressColumns+` FROM user_addresses WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []model.UserAddress
	for rows.Next() {
		var a model.UserAddress
		if err := scanAddress(rows, &a); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (r *pgAddressRepo) CountByUserID(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM user_addresses WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count addresses: %w", err)
	}
	return n, nil
}
