package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/voucherz-backend/api/controllers"
	vouchercontrollers "github.com/angelmondragon/voucherz-backend/api/controllers/vouchers"
	webhookcontrollers "github.com/angelmondragon/voucherz-backend/api/controllers/webhooks"
	"github.com/angelmondragon/voucherz-backend/api/middleware"
	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

// RedisStore is the redis surface the HTTP layer needs: idempotency records,
// rate limit counters and readiness.
type RedisStore interface {
	middleware.ResponseStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// EventDeduper drops redelivered webhook events.
type EventDeduper interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         RedisStore
	Vouchers      vouchercontrollers.Service
	SquareWebhook webhookcontrollers.SquareWebhookService
	SquareSigning webhookcontrollers.SquareSigning
	WebhookDedup  EventDeduper
	// Metrics serves /metrics; defaults to the global prometheus registry.
	Metrics http.Handler
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    params.DB,
			"redis": params.Redis,
		}))
	})

	metricsHandler := params.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(
			params.SquareWebhook,
			params.SquareSigning,
			params.WebhookDedup,
			logg,
		))
	})

	reservePolicy := middleware.NewRateLimitPolicy(
		"reserve",
		cfg.Vouchers.ReserveRateWindow,
		cfg.Vouchers.ReserveRateLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Route("/campaigns/{campaignId}", func(r chi.Router) {
			r.With(middleware.RateLimit(reservePolicy, params.Redis, logg)).
				Post("/reservations", vouchercontrollers.Reserve(params.Vouchers, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRolePartner, enums.ActorRoleAdmin)).
				Get("/vouchers", vouchercontrollers.ListByCampaign(params.Vouchers, logg))
		})

		r.Route("/vouchers/{shortCode}", func(r chi.Router) {
			r.Get("/", vouchercontrollers.Get(params.Vouchers, logg))
			r.Delete("/reservation", vouchercontrollers.Cancel(params.Vouchers, logg))
			r.Post("/redeem", vouchercontrollers.Redeem(params.Vouchers, logg))
			r.Post("/transfer", vouchercontrollers.Transfer(params.Vouchers, logg))
		})

		r.Get("/me/vouchers", vouchercontrollers.ListMine(params.Vouchers, logg))
	})

	return r
}
