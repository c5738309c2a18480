package middleware

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutrixpert/nutrixpert/internal/pkg/entitlements"
)

// EntitlementChecker is the part of the access guard the middleware needs.
type EntitlementChecker interface {
	Check(ctx context.Context, accountID uint) (entitlements.Decision, error)
}

// AccountIDFrom extracts the account a request acts for.
type AccountIDFrom func(c *fiber.Ctx) (uint, bool)

// AccountIDParam reads the account id from a route parameter.
func AccountIDParam(name string) AccountIDFrom {
	return func(c *fiber.Ctx) (uint, bool) {
		id, err := strconv.ParseUint(c.Params(name), 10, 64)
		if err != nil || id == 0 {
			return 0, false
		}
		return uint(id), true
	}
}

// RequireEntitlement lets the request through only when the guard grants
// access. Denials answer 403 with the user-facing message of the decision.
func RequireEntitlement(guard EntitlementChecker, accountIDFrom AccountIDFrom) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, ok := accountIDFrom(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid account id"})
		}

		d, err := guard.Check(c.UserContext(), accountID)
		if err != nil {
			log.Errorf("[Access] Entitlement check for account %d failed: %v", accountID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Entitlement check failed"})
		}
		if !d.Entitled {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"status":  d.Status,
				"message": d.Message,
			})
		}
		c.Locals("ENTITLEMENT", d)
		return c.Next()
	}
}
