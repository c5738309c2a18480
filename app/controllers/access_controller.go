package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/internal/pkg/entitlements"
)

// AccessChecker evaluates practitioner entitlement.
type AccessChecker interface {
	Check(ctx context.Context, accountID uint) (entitlements.Decision, error)
}

// NotificationStore is the read side of in-app notifications.
type NotificationStore interface {
	ListByAccount(ctx context.Context, accountID uint, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, accountID, id uint) error
}

// AccessController serves the internal read API used by the application
type AccessController struct {
	guard         AccessChecker
	notifications NotificationStore
}

func NewAccessController(guard AccessChecker, notifications NotificationStore) *AccessController {
	return &AccessController{guard: guard, notifications: notifications}
}

// HandleGetAccess returns the entitlement decision of an account
func (ac *AccessController) HandleGetAccess(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid account id")
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), readTimeout)
	defer cancel()

	d, err := ac.guard.Check(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(d)
}

// HandleListNotifications lists the newest notifications, ?unread=true for unread only
func (ac *AccessController) HandleListNotifications(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid account id")
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), readTimeout)
	defer cancel()

	items, err := ac.notifications.ListByAccount(ctx, id, c.QueryBool("unread", false), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"items": items, "count": len(items)})
}

// HandleMarkRead marks one notification of the account as read
func (ac *AccessController) HandleMarkRead(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid account id")
	}
	notificationID, ok := parseIDParam(c, "notificationId")
	if !ok {
		return badRequest(c, "Invalid notification id")
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), readTimeout)
	defer cancel()

	if err := ac.notifications.MarkAsRead(ctx, id, notificationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Notification not found"})
		}
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleGate answers 204 once RequireEntitlement let the request through
func (ac *AccessController) HandleGate(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
