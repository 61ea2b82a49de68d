package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "sweeper:lock"

type OrderExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

type CartReclaimer interface {
	ReclaimAbandoned(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically expires unpaid orders and returns stock held by
// abandoned carts. With Redis configured, one replica sweeps per interval.
type Sweeper struct {
	orders      OrderExpirer
	carts       CartReclaimer
	redisClient *redis.Client
	interval    time.Duration
	batch       int
	owner       string
	log         *slog.Logger
	done        chan struct{}
	stopped     chan struct{}
}

func NewSweeper(orders OrderExpirer, carts CartReclaimer, redisClient *redis.Client, interval time.Duration, batch int, log *slog.Logger) *Sweeper {
	return &Sweeper{
		orders:      orders,
		carts:       carts,
		redisClient: redisClient,
		interval:    interval,
		batch:       batch,
		owner:       uuid.NewString(),
		log:         log,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
	s.log.Info("sweeper started", "interval", s.interval.String(), "batch", s.batch)
}

func (s *Sweeper) Stop() {
	close(s.done)
	<-s.stopped
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if !s.acquire(ctx) {
		return
	}

	expired, err := s.orders.ExpireOverdue(ctx, s.batch)
	if err != nil {
		s.log.Error("expire overdue orders", "error", err)
	}
	reclaimed, err := s.carts.ReclaimAbandoned(ctx, s.batch)
	if err != nil {
		s.log.Error("reclaim abandoned cart items", "error", err)
	}
	if expired > 0 || reclaimed > 0 {
		s.log.Info("sweep finished", "expired_orders", expired, "reclaimed_items", reclaimed)
	}
}

// acquire takes the sweep lock for one interval. Without Redis, or when Redis
// is unreachable, every replica sweeps; the row locks keep that safe.
func (s *Sweeper) acquire(ctx context.Context) bool {
	if s.redisClient == nil {
		return true
	}
	ok, err := s.redisClient.SetNX(ctx, sweepLockKey, s.owner, s.interval).Result()
	if err != nil {
		s.log.Warn("sweep lock unavailable, sweeping anyway", "error", err)
		return true
	}
	return ok
}
