package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fulfillment-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/webhooks"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/bot"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/carrier"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/payments"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

// Transitioner is the transitions controller surface used by admin routes.
type Transitioner interface {
	TransitionFileStatus(ctx context.Context, input transitions.FileTransitionInput) (*transitions.Result, error)
	SetEstimate(ctx context.Context, input transitions.EstimateInput) (*transitions.Result, error)
	TransitionOrderStatus(ctx context.Context, input transitions.OrderTransitionInput) (*transitions.Result, error)
	TransitionCODStatus(ctx context.Context, input transitions.CODTransitionInput) (*transitions.Result, error)
}

type BotService interface {
	Parse(raw []byte) bot.Payload
	Handle(ctx context.Context, payload bot.Payload) bot.Ack
}

type CarrierService interface {
	Authenticate(presented string) error
	Handle(ctx context.Context, event carrier.Event) (*transitions.Result, error)
}

type PaymentsService interface {
	VerifySignature(body []byte, signature string) error
	Handle(ctx context.Context, event payments.Event) (*payments.Outcome, error)
}

// Redis is the cache surface the router needs: idempotency storage plus a
// readiness probe.
type Redis interface {
	pkgredis.IdempotencyStore
	controllers.Pinger
}

// Deps bundles everything the HTTP surface is wired to.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         Redis
	Gatherer      prometheus.Gatherer
	HTTPMetrics   *metrics.HTTPMetrics
	Orders        orders.Service
	Transitions   Transitioner
	Notifications notifications.Service
	Audit         audit.Service
	Bot           BotService
	Carrier       CarrierService
	Payments      PaymentsService
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Pinger: deps.DB},
			controllers.ReadinessCheck{Name: "redis", Pinger: deps.Redis},
		))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/file-bot", webhookcontrollers.FileBot(deps.Bot, cfg.Telegram.WebhookSecret, logg))
		r.Post("/carrier", webhookcontrollers.Carrier(deps.Carrier, logg))
		r.Post("/payments", webhookcontrollers.Payments(deps.Payments, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(
			middleware.OptionalAuth(cfg.JWT, logg),
			middleware.Idempotency(deps.Redis, logg),
		).Post("/orders", controllers.CreateOrder(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))
			r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/notifications/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/notifications/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.AdminGetOrder(deps.Orders, logg))
			r.Put("/", controllers.AdminUpdateOrder(deps.Orders, logg))
			r.Post("/status", controllers.AdminOrderStatus(deps.Transitions, logg))
			r.Post("/cod-status", controllers.AdminCODStatus(deps.Transitions, logg))
			r.Post("/resync-parcel", controllers.AdminResyncParcel(deps.Orders, logg))
			r.Post("/complete", controllers.AdminCompleteOrder(deps.Orders, logg))
		})

		r.Route("/files/{fileId}", func(r chi.Router) {
			r.Post("/status", controllers.AdminFileStatus(deps.Transitions, logg))
			r.Post("/estimate", controllers.AdminFileEstimate(deps.Transitions, logg))
		})

		r.Get("/audit/{entityType}/{entityId}", controllers.AdminAuditLog(deps.Audit, logg))
	})

	return r
}
