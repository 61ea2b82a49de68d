package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const rateLimitMessage = "تعداد درخواست‌ها بیش از حد مجاز است"

// RateLimit allows limit requests per window for each user (or client IP when
// anonymous), counted in a fixed Redis window. A nil client or a Redis failure
// lets the request through.
func RateLimit(client *redis.Client, name string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || limit <= 0 {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if id := GetUserID(c); id != uuid.Nil {
			subject = id.String()
		}
		slot := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("ratelimit:%s:%s:%d", name, subject, slot)

		var incr *redis.IntCmd
		_, err := client.TxPipelined(c.Request.Context(), func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(c.Request.Context(), key)
			pipe.Expire(c.Request.Context(), key, window)
			return nil
		})
		if err != nil {
			Logger(c).Warn("rate limiter unavailable", slog.String("limiter", name), slog.Any("error", err))
			c.Next()
			return
		}

		if incr.Val() > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": rateLimitMessage})
			return
		}
		c.Next()
	}
}
