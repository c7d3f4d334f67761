package middleware

import (
	"net/http"
	"strings"
	"time"

	"topup-storefront/internal/core/ports"
	"topup-storefront/pkg/apperror"
	"topup-storefront/pkg/metrics"
	"topup-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderAdminKey  = "X-Admin-Key"

	// Context keys
	CtxUserID = "user_id"
)

// RequestID propagates the caller's X-Request-Id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// OptionalIdentity attaches the caller id when a bearer token is present.
// Anonymous requests pass through; a present but invalid token is rejected.
func OptionalIdentity(tokenSvc ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if !present {
			c.Next()
			return
		}
		if !attachIdentity(c, tokenSvc, token) {
			return
		}
		c.Next()
	}
}

// RequireIdentity rejects requests without a valid bearer token.
func RequireIdentity(tokenSvc ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if !present {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}
		if !attachIdentity(c, tokenSvc, token) {
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", true
	}
	return strings.TrimSpace(token), true
}

func attachIdentity(c *gin.Context, tokenSvc ports.TokenService, token string) bool {
	if token == "" {
		response.Error(c, apperror.ErrInvalidToken())
		c.Abort()
		return false
	}
	claims, err := tokenSvc.Validate(token)
	if err != nil || claims.UserID == "" {
		response.Error(c, apperror.ErrInvalidToken())
		c.Abort()
		return false
	}
	c.Set(CtxUserID, claims.UserID)
	return true
}

// UserID returns the verified caller id, or nil for anonymous requests.
func UserID(c *gin.Context) *string {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return nil
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}

var errAdminKey = apperror.New(apperror.CodeAuthFailure, "Invalid admin key", http.StatusUnauthorized)

// AdminAuth checks X-Admin-Key against an argon2id hash. An empty hash
// disables the admin API.
func AdminAuth(hashSvc ports.HashService, keyHash string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderAdminKey)
		if keyHash == "" || key == "" {
			response.Error(c, errAdminKey)
			c.Abort()
			return
		}

		ok, err := hashSvc.Verify(key, keyHash)
		if err != nil {
			log.Error().Err(err).Msg("admin key hash is unreadable")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if !ok {
			log.Warn().Str("client_ip", c.ClientIP()).Str("path", c.Request.URL.Path).Msg("admin key rejected")
			response.Error(c, errAdminKey)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestLogger logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString(response.RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Metrics records request counts and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start).Seconds())
	}
}

// Recovery turns a panic into a 500 response.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("request_id", c.GetString(response.RequestIDKey)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				response.Error(c, apperror.New(apperror.CodeInternal, "Internal server error", http.StatusInternalServerError))
				c.Abort()
			}
		}()
		c.Next()
	}
}
