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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"slaydrip/backend/internal/cache"
	"slaydrip/backend/internal/config"
	"slaydrip/backend/internal/httpapi"
	"slaydrip/backend/internal/invoice"
	"slaydrip/backend/internal/lock"
	"slaydrip/backend/internal/obs"
	"slaydrip/backend/internal/service"
	"slaydrip/backend/internal/store"
	"slaydrip/backend/internal/store/memory"
	pgstore "slaydrip/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := pgstore.Migrate(ctx, cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("apply migrations")
			}
			logger.Info().Msg("migrations applied")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Warn().Msg("repository: in-memory, data is lost on restart")
	}

	var (
		carts    cache.CartStore = cache.NewMemoryCartStore()
		locker   lock.Locker     = lock.NewLocalLocker()
		attempts limiter.Store
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, carts and checkout locks stay in-process")
			_ = client.Close()
		} else {
			carts = cache.NewRedisCartStore(client)
			locker = lock.NewRedisLocker(client, logger)
			attempts, err = limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "slaydrip:attempts"})
			if err != nil {
				logger.Fatal().Err(err).Msg("rate limit store")
			}
			closers = append(closers, client.Close)
			logger.Info().Str("addr", cfg.RedisAddr).Msg("cart store: redis")
		}
	} else {
		logger.Info().Msg("cart store: in-process")
	}

	renderer, closeRenderer := newRenderer(cfg, logger)
	if closeRenderer != nil {
		closers = append(closers, closeRenderer)
	}
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("storage", cfg.InvoiceStorage).Msg("invoice storage unavailable")
	}
	publisher := invoice.NewPublisher(renderer, storage, cfg.InvoiceBrand, cfg.StallLocation)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, registry)
	domainMetrics := obs.NewDomainMetrics(cfg.MetricsNamespace, registry)

	svc := service.New(repo, carts, locker, publisher, service.Options{
		StallLocation:   cfg.StallLocation,
		CartTTL:         cfg.CartTTL,
		CheckoutLockTTL: cfg.CheckoutLockTTL,
		Logger:          logger,
		Metrics:         domainMetrics,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		Logger:         logger,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		LimiterStore:   attempts,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// PDF rendering happens inside the checkout request.
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Str("renderer", renderer.Extension()).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}

func newRenderer(cfg config.Config, logger zerolog.Logger) (invoice.Renderer, func() error) {
	if cfg.InvoiceRenderer == "chromedp" {
		r := invoice.NewChromedpRenderer(invoice.ChromedpConfig{
			RemoteURL: cfg.ChromeRemoteURL,
			NoSandbox: cfg.ChromeNoSandbox,
			Logger:    logger,
		})
		return r, r.Close
	}
	return invoice.HTMLRenderer{}, nil
}

func newStorage(ctx context.Context, cfg config.Config) (invoice.Storage, error) {
	if cfg.InvoiceStorage != "s3" {
		return invoice.NewFileStorage(cfg.InvoiceDir)
	}
	s3, err := invoice.NewS3Storage(ctx, invoice.S3Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
