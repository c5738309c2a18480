package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Stripe signs the raw body; no limiter so provider retries are never throttled.
	app.Post("/webhooks/stripe", h.deps.Billing.HandleStripeWebhook)
}

func (h HttpRouter) health(c *fiber.Ctx) error {
	if h.deps.Ping != nil {
		if err := h.deps.Ping(); err != nil {
			log.Warnf("[Health] Not ready: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
