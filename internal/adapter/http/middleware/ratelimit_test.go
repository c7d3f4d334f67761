package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"topup-storefront/internal/adapter/http/middleware"
	redisStore "topup-storefront/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func setupRateLimitRouter(t *testing.T, limit int64) *gin.Engine {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	rule := middleware.RateLimitRule{Limit: limit, Window: time.Minute}
	r.GET("/test",
		func(c *gin.Context) {
			if u := c.GetHeader("X-Test-User"); u != "" {
				c.Set(middleware.CtxUserID, u)
			}
			c.Next()
		},
		middleware.RateLimiter(redisStore.NewRateLimitStore(client), "status", rule, zerolog.Nop()),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	return r
}

func doGet(r *gin.Engine, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	router := setupRateLimitRouter(t, 3)

	for i := 0; i < 3; i++ {
		w := doGet(router, "")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	router := setupRateLimitRouter(t, 2)

	doGet(router, "")
	doGet(router, "")
	w := doGet(router, "")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_001")
}

func TestRateLimiter_CountsUsersSeparately(t *testing.T) {
	router := setupRateLimitRouter(t, 1)

	assert.Equal(t, http.StatusOK, doGet(router, "user-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(router, "user-a").Code)
	assert.Equal(t, http.StatusOK, doGet(router, "user-b").Code)
	assert.Equal(t, http.StatusOK, doGet(router, "").Code, "anonymous callers are keyed by IP")
}

func TestRateLimiter_StoreDownAllows(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	r := gin.New()
	r.GET("/test",
		middleware.RateLimiter(redisStore.NewRateLimitStore(client), "status", middleware.RateLimitRule{Limit: 1, Window: time.Minute}, zerolog.Nop()),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules()
	for _, group := range []string{"create", "payment", "status", "cancel", "destination"} {
		rule, ok := rules[group]
		assert.True(t, ok, group)
		assert.Positive(t, rule.Limit, group)
		assert.Equal(t, time.Minute, rule.Window, group)
	}
}
