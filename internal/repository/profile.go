package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/coffeeshop/internal/model"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error)
	// LockOrCreate returns the user's profile row locked for update, creating it if needed.
	LockOrCreate(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error)
	Update(ctx context.Context, profile *model.UserProfile) error
}

const profileColumns = `user_id, phone_number, credit_awarded, credit_balance, credit_consumed_at, created_at, updated_at`

type pgProfileRepo struct{ q querier }

func (r *pgProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	return r.get(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID)
}

func (r *pgProfileRepo) LockOrCreate(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	_, err := r.q.Exec(ctx,
		`INSERT INTO user_profiles (user_id, created_at, updated_at) VALUES ($1, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	p, err := r.get(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("lock profile: profile of user %s vanished", userID)
	}
	return p, nil
}

func (r *pgProfileRepo) get(ctx context.Context, query string, userID uuid.UUID) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	err := r.q.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.PhoneNumber, &p.CreditAwarded,
		&p.CreditBalance, &p.CreditConsumedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *pgProfileRepo) Update(ctx context.Context, profile *model.UserProfile) error {
	err := r.q.QueryRow(ctx,
		`UPDATE user_profiles SET phone_number = $2, credit_awarded = $3, credit_balance = $4,
		 credit_consumed_at = $5, updated_at = NOW() WHERE user_id = $1 RETURNING updated_at`,
		profile.UserID, profile.PhoneNumber, profile.CreditAwarded, profile.CreditBalance, profile.CreditConsumedAt,
	).Scan(&profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}
