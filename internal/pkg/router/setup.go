package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nutrixpert/nutrixpert/app/controllers"
)

// Router registers one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the controllers and settings the routes are wired to.
type Dependencies struct {
	Billing *controllers.BillingController
	Admin   *controllers.AdminController
	Access  *controllers.AccessController
	Guard   controllers.AccessChecker

	AdminAPIKey    string
	InternalAPIKey string

	// LimiterStorage backs the API rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// Ping reports readiness of the stores behind /health.
	Ping func() error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Plain HTTP routes go first so /health and /metrics bypass the API limiter.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
