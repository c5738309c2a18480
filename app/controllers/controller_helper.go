package controllers

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
)

const (
	webhookTimeout = 15 * time.Second
	adminTimeout   = 10 * time.Second
	readTimeout    = 5 * time.Second

	// MaxWebhookBodyBytes bounds the Stripe payloads the service accepts.
	MaxWebhookBodyBytes = 1 << 20
)

var validate = validator.New()

// parseIDParam reads a positive numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

// respondError writes a structured error. Classified errors keep their kind;
// anything else is reported as an internal error without details.
func respondError(c *fiber.Ctx, err error) error {
	status := apperror.HTTPStatus(err)
	kind := string(apperror.KindOf(err))
	if kind == "" {
		kind = "internal_server_error"
	}
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": kind, "message": apperror.PublicMessage(err)})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
