package controllers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/internal/pkg/jobqueue"
)

// ApprovalService is the administrator workflow behind the admin API.
type ApprovalService interface {
	Approve(ctx context.Context, accountID uint) (*models.AccessState, error)
	Reject(ctx context.Context, accountID uint, reason string) (*models.AccessState, error)
	Revoke(ctx context.Context, accountID uint, reason string) (*models.AccessState, error)
	ListPending(ctx context.Context) ([]models.AccessState, error)
	History(ctx context.Context, accountID uint, limit int) ([]models.AccessStateTransition, error)
}

// QueueStats exposes the email queue counters.
type QueueStats interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// AdminController handles the administrator API
type AdminController struct {
	approval ApprovalService
	queue    QueueStats
}

func NewAdminController(approval ApprovalService, queue QueueStats) *AdminController {
	return &AdminController{approval: approval, queue: queue}
}

type reasonRequest struct {
	Reason string `json:"reason" form:"reason" validate:"max=500"`
}

// HandlePending lists practitioners awaiting review
func (ac *AdminController) HandlePending(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	states, err := ac.approval.ListPending(ctx)
	if err != nil {
		return respondError(c, err)
	}

	items := make([]fiber.Map, 0, len(states))
	for _, s := range states {
		items = append(items, fiber.Map{
			"account_id":     s.AccountID,
			"name":           s.Account.Name,
			"email":          s.Account.Email,
			"billing_status": s.BillingStatus,
			"period_end":     formatTimePtr(s.BillingPeriodEnd),
			"created_at":     formatTimePtr(&s.CreatedAt),
		})
	}
	return c.JSON(fiber.Map{"items": items, "count": len(items)})
}

// HandleApprove approves a pending practitioner
func (ac *AdminController) HandleApprove(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid account id")
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	state, err := ac.approval.Approve(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stateResponse(state))
}

// HandleReject rejects a pending practitioner with an optional reason
func (ac *AdminController) HandleReject(c *fiber.Ctx) error {
	return ac.withReason(c, ac.approval.Reject)
}

// HandleRevoke cancels the approval of an active practitioner
func (ac *AdminController) HandleRevoke(c *fiber.Ctx) error {
	return ac.withReason(c, ac.approval.Revoke)
}

func (ac *AdminController) withReason(c *fiber.Ctx, op func(context.Context, uint, string) (*models.AccessState, error)) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid account id")
	}

	var req reasonRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "Reason must be at most 500 characters")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	state, err := op(ctx, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stateResponse(state))
}

// HandleTransitions returns the audit trail of an account
func (ac *AdminController) HandleTransitions(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "Invalid account id")
	}
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil {
		return badRequest(c, "Invalid limit")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	transitions, err := ac.approval.History(ctx, id, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"items": transitions, "count": len(transitions)})
}

// HandleQueueStats reports the state of the email queue
func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	stats, err := ac.queue.GetJobStats(ctx)
	if err != nil {
		return respondError(c, err)
	}
	queued, err := ac.queue.GetQueueSize(ctx)
	if err != nil {
		return respondError(c, err)
	}
	processing, err := ac.queue.GetProcessingSize(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats, "queued": queued, "processing": processing})
}

func stateResponse(s *models.AccessState) fiber.Map {
	return fiber.Map{
		"account_id":       s.AccountID,
		"approval_status":  s.ApprovalStatus,
		"billing_status":   s.BillingStatus,
		"is_entitled":      s.IsEntitled,
		"rejection_reason": s.RejectionReason,
		"approved_at":      formatTimePtr(s.ApprovedAt),
		"rejected_at":      formatTimePtr(s.RejectedAt),
		"cancelled_at":     formatTimePtr(s.CancelledAt),
		"version":          s.Version,
	}
}
