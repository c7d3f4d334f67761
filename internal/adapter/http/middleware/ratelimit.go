package middleware

import (
	"strconv"
	"time"

	redisStore "topup-storefront/internal/adapter/storage/redis"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"create":      {Limit: 20, Window: time.Minute},
		"payment":     {Limit: 20, Window: time.Minute},
		"status":      {Limit: 120, Window: time.Minute},
		"cancel":      {Limit: 10, Window: time.Minute},
		"destination": {Limit: 30, Window: time.Minute},
	}
}

// RateLimiter limits a group per caller. Verified users are counted by id,
// everyone else by client IP. Store errors let the request through.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := group + ":" + callerKey(c)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			c.Header("Retry-After", strconv.FormatInt(max(result.ResetAt-time.Now().Unix(), 1), 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if id := UserID(c); id != nil {
		return "user:" + *id
	}
	return "ip:" + c.ClientIP()
}
