package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit caps requests per client IP.
func RateLimit(limit int64, period time.Duration) gin.HandlerFunc {
	store := memory.NewStore()
	rateLimiter := limiter.New(store, limiter.Rate{
		Period: period,
		Limit:  limit,
	})
	return mgin.NewMiddleware(rateLimiter)
}
