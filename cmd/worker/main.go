package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/helios-hq/backend/internal/config"
	"github.com/helios-hq/backend/internal/db"
	"github.com/helios-hq/backend/internal/events"
	"github.com/helios-hq/backend/internal/repositories"
	"github.com/helios-hq/backend/internal/services"
	"github.com/helios-hq/backend/internal/signature"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	actionRepo := repositories.NewActionRepo(pool)
	userRepo := repositories.NewOrgUserRepo(pool)
	templateRepo := repositories.NewTemplateRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	provisioning := services.NewProvisioningClient(cfg.ProvisioningURL, cfg.ProvisioningTimeoutMS, cfg.ProvisioningRPS, cfg.ProvisioningBurst, log)
	dispatcher := services.NewDispatcher(userRepo, auditRepo, publisher, provisioning, provisioning, log)
	scheduler := services.NewSchedulerService(actionRepo, dispatcher, auditRepo, publisher, cfg, log)
	sigParser := signature.NewParser(cfg.BannerCheckTimeoutMS, cfg.BannerCheckMaxRetries, log)

	c := cron.New()

	if _, err := c.AddFunc(cfg.SchedulerCronSpec, func() {
		if _, err := scheduler.ProcessPendingActions(ctx, cfg.SchedulerBatchLimit); err != nil {
			log.Error("poll cycle failed", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("invalid scheduler cron spec", zap.String("spec", cfg.SchedulerCronSpec), zap.Error(err))
	}

	if _, err := c.AddFunc("@hourly", func() {
		n, err := scheduler.ApprovalReminders(ctx, cfg.ApprovalReminderAge)
		if err != nil {
			log.Error("approval reminder sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("approval reminders published", zap.Int("count", n))
		}
	}); err != nil {
		log.Fatal("failed to register approval reminder sweep", zap.Error(err))
	}

	if _, err := c.AddFunc("@every 6h", func() {
		runBannerSweep(ctx, templateRepo, sigParser, log)
	}); err != nil {
		log.Fatal("failed to register banner sweep", zap.Error(err))
	}

	c.Start()
	log.Info("worker started", zap.String("poll_spec", cfg.SchedulerCronSpec))

	// Health endpoint for container probes
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(fc *fiber.Ctx) error {
		return fc.JSON(fiber.Map{"status": "ok"})
	})
	go func() {
		if err := app.Listen(fmt.Sprintf(":%s", cfg.WorkerPort)); err != nil {
			log.Error("health server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	<-c.Stop().Done()
	_ = app.Shutdown()
}

func runBannerSweep(ctx context.Context, templateRepo *repositories.TemplateRepo, parser *signature.Parser, log *zap.Logger) {
	urls, err := templateRepo.ListBannerURLs(ctx)
	if err != nil {
		log.Error("failed to list banner urls", zap.Error(err))
		return
	}

	for _, u := range urls {
		live, err := parser.VerifyBanner(ctx, u)
		if err != nil {
			log.Warn("banner check failed", zap.String("url", u), zap.Error(err))
			continue
		}
		if !live {
			log.Warn("signature banner is no longer live", zap.String("url", u))
		}
	}
}
