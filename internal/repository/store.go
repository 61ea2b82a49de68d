package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStockUnderflow is returned when a stock adjustment would drive stock below zero.
var ErrStockUnderflow = errors.New("stock would become negative")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// runs unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories bound to one connection or transaction.
type Store interface {
	Users() UserRepository
	Profiles() ProfileRepository
	Addresses() AddressRepository
	Categories() CategoryRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Notifications() NotificationRepository
}

// TxStore is a Store that can open a transaction scope. Repositories handed to
// fn share one transaction; it commits when fn returns nil and rolls back otherwise.
type TxStore interface {
	Store
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type pgStore struct {
	q querier
}

func (s *pgStore) Users() UserRepository                 { return &pgUserRepo{q: s.q} }
func (s *pgStore) Profiles() ProfileRepository           { return &pgProfileRepo{q: s.q} }
func (s *pgStore) Addresses() AddressRepository          { return &pgAddressRepo{q: s.q} }
func (s *pgStore) Categories() CategoryRepository        { return &pgCategoryRepo{q: s.q} }
func (s *pgStore) Products() ProductRepository           { return &pgProductRepo{q: s.q} }
func (s *pgStore) Carts() CartRepository                 { return &pgCartRepo{q: s.q} }
func (s *pgStore) Orders() OrderRepository               { return &pgOrderRepo{q: s.q} }
func (s *pgStore) Notifications() NotificationRepository { return &pgNotificationRepo{q: s.q} }

type pgTxStore struct {
	pgStore
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) TxStore {
	return &pgTxStore{pgStore: pgStore{q: pool}, pool: pool}
}

func (s *pgTxStore) WithinTx(ctx context.Context, fn func(Store) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&pgStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
