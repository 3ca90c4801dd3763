package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fulfillment-backend/internal/audit"
	"github.com/angelmondragon/fulfillment-backend/internal/courses"
	"github.com/angelmondragon/fulfillment-backend/internal/cron"
	"github.com/angelmondragon/fulfillment-backend/internal/downloads"
	"github.com/angelmondragon/fulfillment-backend/internal/fulfillment"
	"github.com/angelmondragon/fulfillment-backend/internal/licensekeys"
	"github.com/angelmondragon/fulfillment-backend/internal/notifications"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/pkg/besteffort"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"gorm.io/gorm"
)

// buildJobs wires the scheduled jobs. The worker never talks to the chat bot,
// so admin notifications raised here are persisted only.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) ([]cron.Job, error) {
	conn := dbClient.DB()
	runner := besteffort.New(logg, metrics.NewBestEffortMetrics(reg))
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	notificationsRepo := notifications.NewRepository(conn)
	dispatcher, err := notifications.NewDispatcher(notificationsRepo, nil, nil, logg)
	if err != nil {
		return nil, err
	}

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
	pipeline, err := fulfillment.NewPipeline(fulfillment.Deps{
		Repo:      fulfillment.NewRepository(conn),
		Tx:        dbClient,
		Downloads: downloadsService,
		Courses:   coursesService,
		Keys:      keysService,
		Outbox:    emitter,
		Audit:     audit.NewRepository(conn),
		Notify:    dispatcher,
		Runner:    runner,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	engine, err := parcels.NewEngine(parcels.NewRepository(conn), logg, parcels.WithMetrics(metrics.NewParcelSyncMetrics(reg)))
	if err != nil {
		return nil, err
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
		return nil, err
	}

	resync, err := cron.NewParcelResyncJob(cron.ParcelResyncJobParams{
		Logger:    logg,
		Orders:    ordersRepo,
		Resyncer:  ordersService,
		BatchSize: cfg.Cron.ParcelResyncBatch,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:          "outbox-retention",
		Logger:        logg,
		DB:            dbClient,
		Purge:         outboxRepo.DeletePublishedBefore,
		RetentionDays: cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}
	notificationRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:   "notification-retention",
		Logger: logg,
		DB:     dbClient,
		Purge: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return notificationsRepo.WithTx(tx).DeleteReadBefore(ctx, cutoff)
		},
		RetentionDays: cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{resync, outboxRetention, notificationRetention}, nil
}
