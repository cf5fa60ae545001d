package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayo6706/stablesend/internal/api/handler"
	"github.com/ayo6706/stablesend/internal/api/middleware"
	"github.com/ayo6706/stablesend/internal/config"
	"github.com/ayo6706/stablesend/internal/gateway"
	"github.com/ayo6706/stablesend/internal/service"
)

type Router struct {
	cfg          *config.Config
	logger       *zap.Logger
	db           *pgxpool.Pool
	redis        *redis.Client
	orchestrator *service.Orchestrator
	ingester     *service.Ingester
	gateway      gateway.Gateway
	store        service.RecordStore
	directory    service.UserDirectory
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	redisClient *redis.Client,
	orchestrator *service.Orchestrator,
	ingester *service.Ingester,
	gw gateway.Gateway,
	store service.RecordStore,
	directory service.UserDirectory,
) *Router {
	return &Router{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		redis:        redisClient,
		orchestrator: orchestrator,
		ingester:     ingester,
		gateway:      gw,
		store:        store,
		directory:    directory,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	webhookHandler := handler.NewWebhookHandler(api.ingester)
	transferHandler := handler.NewTransferHandler(api.orchestrator, api.store)
	walletHandler := handler.NewWalletHandler(api.gateway, api.directory)

	// Public routes
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
		Post("/v1/webhooks/circle", webhookHandler.Receive)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Post("/v1/transfers", transferHandler.Propose)
		r.Post("/v1/transfers/confirm", transferHandler.Confirm)
		r.Post("/v1/transfers/cancel", transferHandler.Cancel)
		r.Get("/v1/transfers/{id}", transferHandler.Get)

		r.Get("/v1/wallet/balance", walletHandler.Balance)
		r.Get("/v1/wallet/address", walletHandler.Address)
	})

	return r
}
