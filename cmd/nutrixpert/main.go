package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nutrixpert/nutrixpert/app/controllers"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/approval"
	"github.com/nutrixpert/nutrixpert/internal/pkg/billing"
	"github.com/nutrixpert/nutrixpert/internal/pkg/cache"
	"github.com/nutrixpert/nutrixpert/internal/pkg/database"
	"github.com/nutrixpert/nutrixpert/internal/pkg/entitlements"
	"github.com/nutrixpert/nutrixpert/internal/pkg/env"
	"github.com/nutrixpert/nutrixpert/internal/pkg/jobqueue"
	"github.com/nutrixpert/nutrixpert/internal/pkg/mail"
	"github.com/nutrixpert/nutrixpert/internal/pkg/notify"
	"github.com/nutrixpert/nutrixpert/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()
	cfg, err := env.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	redisClient := cache.NewClient(cfg)
	repos := repository.NewRepositories(db)

	// Email delivery runs in queue workers, enqueued after each commit.
	queue := jobqueue.NewQueue(redisClient, cfg.QueueWorkers)
	notify.NewEmailProcessor(repos.Notification, repos.User, mail.NewSender(cfg), cfg.MailFrom, cfg.AppURL).Register(queue)
	dispatcher := notify.NewDispatcher(queue, repos.Notification)

	var billingOpts []billing.Option
	if lookup := billing.NewStripeSubscriptionLookup(cfg.StripeSecretKey); lookup != nil {
		billingOpts = append(billingOpts, billing.WithSubscriptionLookup(lookup))
	} else {
		log.Warn("[Billing] STRIPE_SECRET_KEY not set, checkout events are not enriched from the Stripe API")
	}
	billingService := billing.NewService(billing.NewRepository(db), dispatcher, billingOpts...)
	approvalService := approval.NewService(repos.AccessState, dispatcher)
	guard := entitlements.NewGuard(repos.User, repos.AccessState)

	manager := jobqueue.NewManager(queue)
	manager.AddTask(jobqueue.PeriodicTask{
		Name:     "billing event pruning",
		Interval: cfg.PruneInterval,
		Run: func(ctx context.Context) error {
			_, err := billingService.PruneProcessedEvents(ctx, cfg.DedupeRetention)
			return err
		},
	})
	manager.AddTask(jobqueue.PeriodicTask{
		Name:     "notification redispatch",
		Interval: cfg.RedispatchInterval,
		Run: func(ctx context.Context) error {
			_, err := dispatcher.RedispatchPending(ctx, cfg.RedispatchAfter)
			return err
		},
	})
	manager.Start()

	app := fiber.New(fiber.Config{
		AppName:   "Nutri Xpert Pro access",
		BodyLimit: controllers.MaxWebhookBodyBytes,
	})
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./docs/openapi.yml",
		Path:     "v1",
		Title:    "Nutri Xpert Pro Access API",
	}))

	router.InstallRouter(app, router.Dependencies{
		Billing:        controllers.NewBillingController(billing.NewIngestor(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance), billingService),
		Admin:          controllers.NewAdminController(approvalService, queue),
		Access:         controllers.NewAccessController(guard, repos.Notification),
		Guard:          guard,
		AdminAPIKey:    cfg.AdminAPIKey,
		InternalAPIKey: cfg.InternalAPIKey,
		LimiterStorage: cache.NewLimiterStorage(cfg),
		Ping: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(pingCtx); err != nil {
				return err
			}
			return redisClient.Ping(pingCtx).Err()
		},
	})

	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			log.Errorf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}
	manager.Stop()
	if err := redisClient.Close(); err != nil {
		log.Errorf("Redis close: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
