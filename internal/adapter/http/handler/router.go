package handler

import (
	"topup-storefront/internal/adapter/http/middleware"
	redisStore "topup-storefront/internal/adapter/storage/redis"
	"topup-storefront/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	TxSvc          ports.TransactionService
	StatusSvc      ports.StatusService
	DestinationSvc ports.DestinationService
	Gateway        ports.PaymentGateway
	Ledger         ports.NotificationLedger // nil = no redelivery short-circuit
	Events         ports.EventRecorder
	EventRepo      ports.EventRepository
	TokenSvc       ports.TokenService
	HashSvc        ports.HashService
	AdminKeyHash   string                     // empty = admin API disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	NotifyPath     string // route DOKU posts notifications to
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(1 << 20))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// Gateway callbacks authenticate by signature, not by bearer token.
	notifyPath := deps.NotifyPath
	if notifyPath == "" {
		notifyPath = "/api/v1/payments/doku/notification"
	}
	webhookHandler := NewWebhookHandler(deps.Gateway, deps.TxSvc, deps.Ledger, deps.Events, deps.Logger)
	r.POST(notifyPath, webhookHandler.DokuNotification)

	v1 := r.Group("/api/v1")
	optionalID := middleware.OptionalIdentity(deps.TokenSvc)
	requiredID := middleware.RequireIdentity(deps.TokenSvc)

	txHandler := NewTransactionHandler(deps.TxSvc, deps.StatusSvc)
	transactions := v1.Group("/transactions")
	{
		transactions.POST("", optionalID, rl("create"), txHandler.Create)
		transactions.POST("/:id/payment", optionalID, rl("payment"), txHandler.SelectPayment)
		transactions.GET("/:id/status", optionalID, rl("status"), txHandler.GetStatus)
		transactions.POST("/:id/cancel", requiredID, rl("cancel"), txHandler.Cancel)
	}

	destHandler := NewDestinationHandler(deps.DestinationSvc)
	v1.POST("/destinations/validate", optionalID, rl("destination"), destHandler.Validate)

	adminHandler := NewAdminHandler(deps.TxSvc, deps.EventRepo)
	admin := v1.Group("/admin/transactions", middleware.AdminAuth(deps.HashSvc, deps.AdminKeyHash, deps.Logger))
	{
		admin.POST("/:id/cancel", adminHandler.Cancel)
		admin.POST("/:id/fulfill", adminHandler.Fulfill)
		admin.POST("/:id/reconcile", adminHandler.Reconcile)
		admin.POST("/:id/release", adminHandler.Release)
		admin.GET("/:id", adminHandler.Inspect)
		admin.GET("/:id/events", adminHandler.Events)
	}

	return r
}
