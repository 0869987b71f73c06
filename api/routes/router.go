package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/zenergy-backend/api/controllers"
	"github.com/angelmondragon/zenergy-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/zenergy-backend/internal/checkout"
	"github.com/angelmondragon/zenergy-backend/internal/orders"
	"github.com/angelmondragon/zenergy-backend/internal/wallet"
	"github.com/angelmondragon/zenergy-backend/pkg/config"
	"github.com/angelmondragon/zenergy-backend/pkg/enums"
	"github.com/angelmondragon/zenergy-backend/pkg/logger"
	"github.com/angelmondragon/zenergy-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/zenergy-backend/pkg/redis"
)

// RedisStore is the redis surface used by the HTTP layer.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    RedisStore
	Pingers  map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTPMetrics
	Stores   middleware.OwnershipChecker
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Wallet   wallet.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	writes := middleware.NewRateLimitPolicy("writes", cfg.RateLimit.Window, cfg.RateLimit.Writes)
	var limiter func(http.Handler) http.Handler
	var idempotency func(http.Handler) http.Handler
	if deps.Redis != nil {
		limiter = middleware.RateLimit(writes, deps.Redis, logg)
		idempotency = middleware.Idempotency(deps.Redis, logg)
	} else {
		limiter = passthrough
		idempotency = passthrough
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(idempotency)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleCustomer))
			r.With(limiter).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			r.Get("/orders", controllers.ListOrders(deps.Orders, logg))
			r.Get("/orders/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/orders/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Get("/orders/{orderId}/qr", controllers.PaymentQR(deps.Orders, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleSeller))
			r.Use(middleware.StoreContext(deps.Stores, logg))
			r.Get("/orders", controllers.SellerListOrders(deps.Orders, logg))
			r.Post("/orders/{orderId}/status", controllers.SellerAdvanceStatus(deps.Orders, logg))
			r.Get("/wallet", controllers.WalletOverview(deps.Wallet, logg))
			r.Get("/wallet/withdrawals", controllers.ListWithdrawals(deps.Wallet, logg))
			r.With(limiter).Post("/wallet/withdrawals", controllers.RequestWithdraw(deps.Wallet, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(idempotency)
		r.Get("/orders", controllers.AdminListOrders(deps.Orders, logg))
		r.Post("/orders/{orderId}/confirm-payment", controllers.AdminConfirmPayment(deps.Orders, logg))
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
