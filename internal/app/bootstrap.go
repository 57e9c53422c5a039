// Package app is the composition root; bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"pushgate.io/pushgate/internal/api/handlers"
	"pushgate.io/pushgate/internal/api/middleware"
	"pushgate.io/pushgate/internal/config"
	"pushgate.io/pushgate/internal/dispatch"
	"pushgate.io/pushgate/internal/infrastructure"
	"pushgate.io/pushgate/internal/jobs"
	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/pkg/worker"
	"pushgate.io/pushgate/internal/store"
)

// Application holds composed application dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine
	DB     *infrastructure.DatabaseClients
	Pools  *worker.Pools
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		DispatchPoolSize: cfg.Worker.DispatchPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	st := store.NewPostgresStore(db.Pool)

	templates, err := dispatch.LoadTemplates(cfg.Dispatch.TemplatesFile)
	if err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	webpushSender := dispatch.NewWebPushSender(dispatch.VAPIDKeys{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber: cfg.Push.Subscriber,
	}, st, pools)
	if !webpushSender.Configured() {
		logger.Warn("VAPID keys not configured; web push dispatch disabled")
	}

	onesignalSender := dispatch.NewOneSignalSender(dispatch.OneSignalConfig{
		AppID:      cfg.OneSignal.AppID,
		RESTAPIKey: cfg.OneSignal.RESTAPIKey,
		APIBaseURL: cfg.OneSignal.APIBaseURL,
	}, st)
	if !onesignalSender.Configured() {
		logger.Info("OneSignal credentials not configured; vendor dispatch disabled")
	}

	dispatcher := dispatch.NewDispatcher(webpushSender, onesignalSender, templates, dispatch.LimitConfig{
		PerMinute: cfg.Dispatch.RatePerMinute,
		Burst:     cfg.Dispatch.Burst,
	})

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewPushDispatchWorker(dispatcher))
	river.AddWorker(workers, jobs.NewSubscriptionCleanupWorker(st, cfg.Dispatch.SubscriptionRetention))

	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init river client: %w", err)
	}

	// Subscription retention cleanup: run daily and once on startup so dead
	// endpoints never accumulate past the retention window.
	db.RiverClient.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.SubscriptionCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)

	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  cfg.Security.JWTExpiresIn,
	}

	server := handlers.NewServer(handlers.ServerDeps{
		Store:          st,
		Queue:          db.RiverClient,
		Pools:          pools,
		JWTCfg:         jwtCfg,
		VAPIDPublicKey: cfg.Push.VAPIDPublicKey,
	})

	logger.Info("Application bootstrapped",
		zap.Bool("webpush_configured", webpushSender.Configured()),
		zap.Bool("onesignal_configured", onesignalSender.Configured()),
	)

	return &Application{
		Config: cfg,
		Router: newRouter(cfg, server),
		DB:     db,
		Pools:  pools,
	}, nil
}
