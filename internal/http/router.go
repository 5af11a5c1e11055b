package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/helios-hq/backend/internal/config"
	"github.com/helios-hq/backend/internal/http/handlers"
	"github.com/helios-hq/backend/internal/middleware"
	"github.com/helios-hq/backend/internal/rbac"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	actionHandler *handlers.ActionHandler,
	userHandler *handlers.UserHandler,
	templateHandler *handlers.TemplateHandler,
	signatureHandler *handlers.SignatureHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public, IP-bucketed limit)
	api.Post("/auth/token", middleware.RateLimitMiddleware(rdb, 10, time.Minute), authHandler.ExchangeAPIKey)

	// Protected endpoints, rate limited per org once the JWT is resolved
	protected := api.Group("", middleware.AuthMiddleware(cfg, log), middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Scheduled actions
	protected.Post("/actions", middleware.RequirePermission(rbac.PermScheduleAction), actionHandler.ScheduleAction)
	protected.Get("/actions", middleware.RequirePermission(rbac.PermViewActions), actionHandler.ListActions)
	protected.Get("/actions/approvals/pending", middleware.RequirePermission(rbac.PermViewActions), actionHandler.PendingApprovals)
	protected.Get("/actions/:id", middleware.RequirePermission(rbac.PermViewActions), actionHandler.GetAction)
	protected.Put("/actions/:id", middleware.RequirePermission(rbac.PermUpdateAction), actionHandler.UpdateAction)
	protected.Post("/actions/:id/approve", middleware.RequirePermission(rbac.PermApproveAction), actionHandler.ApproveAction)
	protected.Post("/actions/:id/reject", middleware.RequirePermission(rbac.PermApproveAction), actionHandler.RejectAction)
	protected.Post("/actions/:id/cancel", middleware.RequirePermission(rbac.PermCancelAction), actionHandler.CancelAction)
	protected.Get("/actions/:id/events", middleware.RequirePermission(rbac.PermViewActions), actionHandler.GetActionEvents)

	// API keys (owner only)
	protected.Post("/apikeys", middleware.RequirePermission(rbac.PermManageAPIKeys), authHandler.CreateAPIKey)

	// Org users
	protected.Post("/users", middleware.RequirePermission(rbac.PermManageUsers), userHandler.CreateUser)
	protected.Get("/users", userHandler.ListUsers)
	protected.Get("/users/:id", userHandler.GetUser)

	// Action templates
	protected.Post("/templates", middleware.RequirePermission(rbac.PermManageTemplates), templateHandler.CreateTemplate)
	protected.Get("/templates", templateHandler.ListTemplates)
	protected.Get("/templates/:id", templateHandler.GetTemplate)

	// Signature analytics
	protected.Post("/signature/parse", signatureHandler.ParseSignature)
	protected.Post("/signature/verify-banner", signatureHandler.VerifyBanner)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
