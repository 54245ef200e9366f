package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/http/handlers"
	applog "storefront/internal/log"
	"storefront/internal/payment"
	"storefront/internal/repos"
	"storefront/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[warn] .env: %v", err)
	}
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			defer f.Close()
			mw := io.MultiWriter(os.Stdout, f)
			log.SetOutput(mw)
			applog.SetOutput(mw)
		}
	}
	defer applog.Sync()

	db, err := repos.OpenDB(cfg.DBDSN, cfg.LockWait)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedDemo {
		if err := repos.SeedDemo(ctx, db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatal(err)
		}
	}

	var gw payment.Gateway
	if cfg.StripeSecretKey != "" {
		gw = payment.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		log.Printf("[warn] STRIPE_SECRET_KEY not set; using in-memory payments that settle immediately")
		gw = payment.NewMemoryGateway(true)
	}

	subs := []services.Subscriber{services.NotificationSubscriber{}, services.FulfillmentSubscriber{}}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatal(err)
		}
		defer kp.Close()
		subs = append(subs, kp)
	}
	relay := services.NewOutboxRelay(repos.NewOutboxRepo(db), cfg.OutboxPollInterval, cfg.OutboxBatch, subs...)

	deps := handlers.NewDeps(db, cfg, gw)
	app := handlers.NewApp(handlers.Views("./web/templates"))
	app.Use(logger.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/webhooks/stripe"
		},
	}))
	handlers.Register(app, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	if err := g.Wait(); err != nil {
		applog.Error(nil, "server.exit", err, nil)
		log.Fatal(err)
	}
}
