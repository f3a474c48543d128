// Package ratelimit caps WebSocket connection attempts per client IP using
// Redis or local memory as the counter store.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/metrics"
)

// Limiter guards the WebSocket upgrade endpoint.
type Limiter struct {
	wsIP  *limiter.Limiter
	store limiter.Store
}

// NewLimiter creates a Limiter from a formatted rate ("100-M" = 100 per
// minute). A nil redisClient falls back to an in-memory store, which is the
// single-instance default.
func NewLimiter(wsIPRate string, redisClient *redis.Client) (*Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(wsIPRate)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:meet:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
	} else {
		store = memory.NewStore()
	}

	return &Limiter{
		wsIP:  limiter.New(store, rate),
		store: store,
	}, nil
}

// CheckWebSocket reports whether a WebSocket upgrade from this IP should be
// allowed. When the limit is exceeded it writes the 429 response itself and
// returns false. Store failures fail open: a broken limiter must not take the
// hub down.
func (rl *Limiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true // Fail open
	}

	metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}
