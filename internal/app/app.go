package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/api"
	"github.com/kwamina/walletbridge/internal/api/middleware"
	"github.com/kwamina/walletbridge/internal/config"
	"github.com/kwamina/walletbridge/internal/db"
	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/gateway"
	"github.com/kwamina/walletbridge/internal/idempotency"
	"github.com/kwamina/walletbridge/internal/observability"
	"github.com/kwamina/walletbridge/internal/repository"
	"github.com/kwamina/walletbridge/internal/service"
	"github.com/kwamina/walletbridge/internal/signer"
	"github.com/kwamina/walletbridge/internal/worker"
)

// Run bootstraps the HTTP server and background workers, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	idemStore := idempotency.NewStore(redisClient, idempotency.NewPostgresBackend(pool), cfg.IdempotencyTTL)

	railCreds := signer.Credentials{
		AccessKey: cfg.RailAccessKey,
		SecretKey: cfg.RailSecretKey,
	}
	gateways := buildGateways(cfg, railCreds)

	stateSvc := service.NewOAuthStateService(store, cfg.OAuthStateTTL)
	walletSvc := service.NewWalletService(store, stateSvc, authorizeURLs(cfg))
	transferSvc := service.NewTransferService(store, gateways, service.TransferConfig{
		Fees:            cfg.FeePolicy,
		BridgeEwalletID: cfg.BridgeEwalletID,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff,
	})
	reconSvc := service.NewReconciliationService(store)
	verifier := signer.NewVerifier(railCreds, cfg.CallbackSkewTolerance)
	webhookSvc := service.NewWebhookService(store, verifier, cfg.WebhookSkipSignature)

	reconWorker := worker.NewReconciliationWorker(reconSvc).WithInterval(cfg.ReconciliationInterval)
	stopRecon := reconWorker.Run(ctx)
	sweeper := worker.NewStateSweeper(stateSvc).WithInterval(cfg.StateSweepInterval)
	stopSweeper := sweeper.Run(ctx)
	logger.Info("background workers started",
		zap.Duration("reconciliation_interval", cfg.ReconciliationInterval),
		zap.Duration("state_sweep_interval", cfg.StateSweepInterval))

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, walletSvc, transferSvc, reconSvc, webhookSvc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping background workers")
	stopRecon()
	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// buildGateways registers one gateway per configured rail.
func buildGateways(cfg *config.Config, railCreds signer.Credentials) *gateway.Registry {
	registry := gateway.NewRegistry()
	if p, ok := cfg.Providers[domain.ProviderOpenBank]; ok && p.BaseURL != "" {
		registry.Register(domain.ProviderOpenBank, gateway.NewOpenBank(p.BaseURL, p.APIToken))
	}
	if p, ok := cfg.Providers[domain.ProviderPeerPay]; ok && p.BaseURL != "" {
		registry.Register(domain.ProviderPeerPay, gateway.NewPeerPay(p.BaseURL, p.APIToken))
	}
	if p, ok := cfg.Providers[domain.ProviderPOSLink]; ok && p.BaseURL != "" {
		registry.Register(domain.ProviderPOSLink, gateway.NewPOSLink(p.BaseURL, p.APIToken))
	}
	if p, ok := cfg.Providers[domain.ProviderAltWallet]; ok && p.BaseURL != "" {
		registry.Register(domain.ProviderAltWallet, gateway.NewAltWallet(p.BaseURL, p.APIToken))
	}
	if p, ok := cfg.Providers[domain.ProviderBridgeRail]; ok && p.BaseURL != "" {
		registry.Register(domain.ProviderBridgeRail, gateway.NewBridgeRail(p.BaseURL, railCreds, cfg.BridgeEwalletID))
	}
	return registry
}

func authorizeURLs(cfg *config.Config) map[domain.Provider]string {
	urls := make(map[domain.Provider]string)
	for provider, p := range cfg.Providers {
		if p.AuthorizeURL != "" {
			urls[provider] = p.AuthorizeURL
		}
	}
	return urls
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
