package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fulfillment-backend/api/routes"
	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/internal/courses"
	"github.com/angelmondragon/fulfillment-backend/internal/downloads"
	"github.com/angelmondragon/fulfillment-backend/internal/fulfillment"
	"github.com/angelmondragon/fulfillment-backend/internal/licensekeys"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/internal/transitions"
	"github.com/angelmondragon/fulfillment-backend/internal/tuningfiles"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/bot"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/carrier"
	"github.com/angelmondragon/fulfillment-backend/internal/webhooks/payments"
	"github.com/angelmondragon/fulfillment-backend/pkg/besteffort"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
	"github.com/angelmondragon/fulfillment-backend/pkg/telegram"
)

// buildRouterDeps assembles the service graph behind the HTTP router.
func buildRouterDeps(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg *prometheus.Registry) (routes.Deps, error) {
	conn := dbClient.DB()
	runner := besteffort.New(logg, metrics.NewBestEffortMetrics(reg))
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	var chat *telegram.Client
	if cfg.Telegram.BotToken != "" {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, telegram.WithBaseURL(cfg.Telegram.BaseURL))
		if err != nil {
			return routes.Deps{}, fmt.Errorf("telegram client: %w", err)
		}
		chat = client
	} else {
		logg.Warn(ctx, "telegram bot token not set; chat notifications and the file bot are disabled")
	}

	notificationsRepo := notifications.NewRepository(conn)
	var chatSender notifications.ChatSender
	if chat != nil {
		chatSender = chat
	}
	dispatcher, err := notifications.NewDispatcher(notificationsRepo, chatSender, cfg.Telegram.ChatIDs(), logg)
	if err != nil {
		return routes.Deps{}, err
	}
	realtime, err := notifications.NewRealtimePush(redisClient)
	if err != nil {
		return routes.Deps{}, err
	}
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		return routes.Deps{}, err
	}

	auditRepo := audit.NewRepository(conn)
	auditService, err := audit.NewService(auditRepo)
	if err != nil {
		return routes.Deps{}, err
	}

	pipeline, err := buildPipeline(cfg, logg, dbClient, emitter, auditRepo, dispatcher, runner)
	if err != nil {
		return routes.Deps{}, err
	}

	parcelsRepo := parcels.NewRepository(conn)
	engine, err := parcels.NewEngine(parcelsRepo, logg, parcels.WithMetrics(metrics.NewParcelSyncMetrics(reg)))
	if err != nil {
		return routes.Deps{}, err
	}

	ordersRepo := orders.NewRepository(conn)
	ordersService, err := orders.NewService(orders.Deps{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Parcels:   engine,
		Outbox:    emitter,
		Notify:    dispatcher,
		Completer: pipeline,
		Numbers:   orders.NewNumberGenerator(cfg.Fulfillment.OrderNumberRetries),
		Runner:    runner,
		Logger:    logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	filesRepo := tuningfiles.NewRepository(conn)
	transitionDeps := transitions.Deps{
		Tx:                dbClient,
		Files:             filesRepo,
		Orders:            ordersRepo,
		Parcels:           parcelsRepo,
		Audit:             auditRepo,
		Outbox:            emitter,
		Notify:            dispatcher,
		Realtime:          realtime,
		Completer:         pipeline,
		Runner:            runner,
		Logger:            logg,
		CallbackNamespace: cfg.Telegram.CallbackNamespace,
	}
	if chat != nil {
		transitionDeps.Chat = chat
	}
	controller, err := transitions.NewController(transitionDeps)
	if err != nil {
		return routes.Deps{}, err
	}

	var botService routes.BotService
	if chat != nil {
		svc, err := bot.NewService(bot.ServiceParams{
			Transitions: controller,
			Files:       filesRepo,
			Chat:        chat,
			Namespaces:  []string{cfg.Telegram.CallbackNamespace},
			AdminChats:  cfg.Telegram.ChatIDs(),
			Logger:      logg,
		})
		if err != nil {
			return routes.Deps{}, err
		}
		botService = svc
	}

	carrierService, err := carrier.NewService(carrier.ServiceParams{
		Parcels:     parcelsRepo,
		Transitions: controller,
		Token:       cfg.Carrier.WebhookToken,
		Logger:      logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	guard, err := idempotency.NewManager(redisClient, cfg.Payments.IdempotencyTTL)
	if err != nil {
		return routes.Deps{}, err
	}
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Orders: ordersService,
		Guard:  guard,
		Secret: cfg.Payments.WebhookSecret,
		Logger: logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Gatherer:      reg,
		HTTPMetrics:   metrics.NewHTTPMetrics(reg),
		Orders:        ordersService,
		Transitions:   controller,
		Notifications: notificationsService,
		Audit:         auditService,
		Bot:           botService,
		Carrier:       carrierService,
		Payments:      paymentsService,
	}, nil
}

func buildPipeline(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, emitter outbox.Emitter, auditRepo audit.Repository, dispatcher notifications.Dispatcher, runner *besteffort.Runner) (*fulfillment.Pipeline, error) {
	conn := dbClient.DB()
	downloadsService, err := downloads.NewService(conn, cfg.Fulfillment.DownloadTTL)
	if err != nil {
		return nil, err
	}
	coursesService, err := courses.NewService(conn)
	if err != nil {
		return nil, err
	}
	keysService, err := licensekeys.NewService(conn)
	if err != nil {
		return nil, err
	}
	return fulfillment.NewPipeline(fulfillment.Deps{
		Repo:      fulfillment.NewRepository(conn),
		Tx:        dbClient,
		Downloads: downloadsService,
		Courses:   coursesService,
		Keys:      keysService,
		Outbox:    emitter,
		Audit:     auditRepo,
		Notify:    dispatcher,
		Runner:    runner,
		Logger:    logg,
	})
}
