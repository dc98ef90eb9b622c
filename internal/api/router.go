package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/api/handler"
	"github.com/kwamina/walletbridge/internal/api/middleware"
	"github.com/kwamina/walletbridge/internal/api/spec"
	"github.com/kwamina/walletbridge/internal/config"
	"github.com/kwamina/walletbridge/internal/idempotency"
	"github.com/kwamina/walletbridge/internal/service"
)

// Router wires the HTTP surface: middleware stack, public and authenticated
// route groups, and the operational endpoints.
type Router struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *pgxpool.Pool
	redis       redis.Cmdable
	idemStore   *idempotency.Store
	walletSvc   *service.WalletService
	transferSvc *service.TransferService
	reconSvc    *service.ReconciliationService
	webhookSvc  *service.WebhookService
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	redisClient redis.Cmdable,
	idemStore *idempotency.Store,
	walletSvc *service.WalletService,
	transferSvc *service.TransferService,
	reconSvc *service.ReconciliationService,
	webhookSvc *service.WebhookService,
) *Router {
	return &Router{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		redis:       redisClient,
		idemStore:   idemStore,
		walletSvc:   walletSvc,
		transferSvc: transferSvc,
		reconSvc:    reconSvc,
		webhookSvc:  webhookSvc,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	authHandler := handler.NewAuthHandler(api.cfg.AdminUserIDs)
	walletHandler := handler.NewWalletHandler(api.walletSvc)
	transferHandler := handler.NewTransferHandler(api.transferSvc)
	opsHandler := handler.NewOpsHandler(api.reconSvc)
	webhookHandler := handler.NewWebhookHandler(api.webhookSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Public routes. The link callback carries its own credential (the state
	// token) and the settlement webhook is HMAC-signed.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Post("/v1/auth/token", authHandler.IssueToken)
		r.Post("/v1/wallets/link/callback", walletHandler.CompleteLink)
		r.Post("/v1/webhooks/settlement", webhookHandler.HandleSettlementCallback)
	})

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Post("/v1/wallets/link", walletHandler.BeginLink)
		r.Post("/v1/wallets", walletHandler.Register)
		r.Get("/v1/wallets", walletHandler.List)
		r.Delete("/v1/wallets/{walletID}", walletHandler.Deactivate)

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/transfers", transferHandler.Create)
		r.Get("/v1/transfers/{id}", transferHandler.Get)
		r.Post("/v1/transfers/{id}/cancel", transferHandler.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Get("/v1/ops/reconciliation", opsHandler.ListReconciliation)
			r.Post("/v1/ops/reconciliation/{id}/resolve", opsHandler.ResolveReconciliation)
		})
	})

	// Operational endpoints.
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})

	return r
}
