package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/nutrixpert/nutrixpert/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		},
	}))
	v1 := api.Group("/v1")

	admin := v1.Group("/admin", middleware.RequireAPIKey(h.deps.AdminAPIKey))
	admin.Get("/practitioners/pending", h.deps.Admin.HandlePending)
	admin.Post("/practitioners/:id/approve", h.deps.Admin.HandleApprove)
	admin.Post("/practitioners/:id/reject", h.deps.Admin.HandleReject)
	admin.Post("/practitioners/:id/revoke", h.deps.Admin.HandleRevoke)
	admin.Get("/practitioners/:id/transitions", h.deps.Admin.HandleTransitions)
	admin.Get("/queue", h.deps.Admin.HandleQueueStats)

	access := v1.Group("/access", middleware.RequireAPIKey(h.deps.InternalAPIKey))
	access.Get("/:id", h.deps.Access.HandleGetAccess)
	access.Get("/:id/gate", middleware.RequireEntitlement(h.deps.Guard, middleware.AccountIDParam("id")), h.deps.Access.HandleGate)
	access.Get("/:id/notifications", h.deps.Access.HandleListNotifications)
	access.Post("/:id/notifications/:notificationId/read", h.deps.Access.HandleMarkRead)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
