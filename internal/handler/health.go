package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger is anything readiness can probe: the pgx pool, a broker connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db          Pinger
	redisClient *redis.Client
	broker      Pinger
}

// NewHealthHandler builds the probes. A nil redis client or broker is skipped.
func NewHealthHandler(db Pinger, redisClient *redis.Client, broker Pinger) *HealthHandler {
	return &HealthHandler{db: db, redisClient: redisClient, broker: broker}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	resp := gin.H{"status": "ok"}

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "postgres": "unavailable"})
		return
	}
	resp["postgres"] = "connected"

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "redis": "unavailable"})
			return
		}
		resp["redis"] = "connected"
	}

	if h.broker != nil {
		if err := h.broker.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "broker": "unavailable"})
			return
		}
		resp["broker"] = "connected"
	}

	c.JSON(http.StatusOK, resp)
}
