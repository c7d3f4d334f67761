package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topup-storefront/config"
	"topup-storefront/internal/adapter/fulfillment/digiflazz"
	"topup-storefront/internal/adapter/gateway/doku"
	httpHandler "topup-storefront/internal/adapter/http/handler"
	pgStorage "topup-storefront/internal/adapter/storage/postgres"
	redisStorage "topup-storefront/internal/adapter/storage/redis"
	"topup-storefront/internal/core/ports"
	"topup-storefront/internal/service"
	"topup-storefront/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting top-up storefront")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Repositories
	catalogRepo := pgStorage.NewCatalogRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)

	// Redis stores
	statusCache := redisStorage.NewStatusCache(rdb)
	ledger := redisStorage.NewNotificationLedger(rdb)
	var rateLimitStore *redisStorage.RateLimitStore
	if cfg.RateLimit.Enabled {
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
	}

	// Crypto and identity
	encSvc, err := service.NewAESEncryptionService(cfg.Encryption.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.Identity.Secret, cfg.Identity.Expiry, cfg.Identity.Issuer)

	// External providers
	gateway := doku.NewClient(doku.Config{
		BaseURL:          cfg.Doku.BaseURL,
		ClientID:         cfg.Doku.ClientID,
		SecretKey:        cfg.Doku.SecretKey,
		NotificationPath: cfg.Doku.NotificationPath,
		CallbackURL:      cfg.Doku.CallbackURL,
		PaymentDueMins:   cfg.Doku.PaymentDueMins,
		MaxClockSkew:     cfg.Doku.MaxClockSkew,
	}, service.NewDokuSignatureCodec(), &http.Client{Timeout: cfg.Doku.Timeout}, logger.Component(log, "doku"))

	provider := digiflazz.NewClient(digiflazz.Config{
		BaseURL:  cfg.Digiflazz.BaseURL,
		Username: cfg.Digiflazz.Username,
		APIKey:   cfg.Digiflazz.APIKey,
		Testing:  cfg.Digiflazz.Testing,
	}, &http.Client{Timeout: cfg.Digiflazz.Timeout}, logger.Component(log, "digiflazz"))

	// Business services
	eventSvc := service.NewEventService(eventRepo, log)
	txSvc := service.NewTransactionService(catalogRepo, txRepo, gateway, provider, encSvc, eventSvc, logger.Component(log, "state_machine"))
	statusSvc := service.NewStatusService(txRepo, statusCache, cfg.Poller.CacheTTL, cfg.Poller.Interval, cfg.Poller.MaxAttempts, log)
	destSvc := service.NewDestinationService(catalogRepo, provider, log)

	if cfg.Reconciler.Enabled {
		reconciler := service.NewReconciler(
			txRepo,
			txSvc,
			cfg.Reconciler.Interval,
			cfg.Reconciler.MinAge,
			cfg.Reconciler.BatchSize,
			logger.Component(log, "reconciler"),
		)
		go reconciler.Run(ctx)
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TxSvc:          txSvc,
		StatusSvc:      statusSvc,
		DestinationSvc: destSvc,
		Gateway:        gateway,
		Ledger:         ledger,
		Events:         eventSvc,
		EventRepo:      eventRepo,
		TokenSvc:       tokenSvc,
		HashSvc:        hashSvc,
		AdminKeyHash:   cfg.Admin.KeyHash,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)},
		NotifyPath:     cfg.Doku.NotificationPath,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Flush pending lifecycle events before the pool closes.
	eventSvc.Wait()

	log.Info().Msg("Server exited")
}
