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

	"github.com/ayo6706/stablesend/internal/api"
	"github.com/ayo6706/stablesend/internal/api/middleware"
	"github.com/ayo6706/stablesend/internal/callback"
	"github.com/ayo6706/stablesend/internal/chain"
	"github.com/ayo6706/stablesend/internal/config"
	"github.com/ayo6706/stablesend/internal/db"
	"github.com/ayo6706/stablesend/internal/dedupe"
	"github.com/ayo6706/stablesend/internal/ens"
	"github.com/ayo6706/stablesend/internal/gateway"
	"github.com/ayo6706/stablesend/internal/notify"
	"github.com/ayo6706/stablesend/internal/observability"
	"github.com/ayo6706/stablesend/internal/rates"
	"github.com/ayo6706/stablesend/internal/repository"
	"github.com/ayo6706/stablesend/internal/service"
	"github.com/ayo6706/stablesend/internal/worker"
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

	repo := repository.NewRepository(pool)
	registry := callback.NewRegistry(cfg.ConfirmationTTL)

	circle := gateway.NewCircleClient(cfg.CircleBaseURL, cfg.CircleAPIKey, cfg.CircleEntitySecret)
	attestations := gateway.NewAttestationClient(cfg.AttestationBaseURL)
	poller := service.NewPoller(attestations, cfg.AttestationAttempts, cfg.AttestationInterval)
	source := chain.NewRPCSource(cfg.InfuraAPIKey)
	ratesSvc := rates.NewHTTPService(cfg.RatesURL, redisClient, cfg.RatesCacheTTL)
	resolver := ens.NewClient(cfg.ENSAPIBaseURL)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.ChatBotToken != "" {
		notifier = notify.NewChatClient(cfg.ChatAPIBaseURL, cfg.ChatBotToken)
	}

	orchestrator := service.NewOrchestrator(service.OrchestratorDeps{
		Store:       repo,
		Directory:   repo,
		Registry:    registry,
		Gateway:     circle,
		Chain:       source,
		Attestation: poller,
		Rates:       ratesSvc,
		ENS:         resolver,
		Notifier:    notifier,
	})
	ingester := service.NewIngester(orchestrator, repo,
		dedupe.NewRedisStore(redisClient, cfg.WebhookDedupeTTL), notifier, resolver)

	stallWorker := worker.NewStallWorker(service.NewStallMonitor(repo, cfg.StallThreshold)).
		WithInterval(cfg.StallSweepInterval)
	stopWorker := stallWorker.Run(ctx)

	router := api.NewRouter(cfg, logger, pool, redisClient, orchestrator, ingester, circle, repo, repo)

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

	logger.Info("stopping stall worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("waiting for in-flight attestation tasks")
	orchestrator.Wait()

	logger.Info("shutdown complete")
	return nil
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
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
