// Package approval implements the administrator review of practitioners.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
	"github.com/nutrixpert/nutrixpert/internal/pkg/metrics"
	"github.com/nutrixpert/nutrixpert/internal/pkg/notify"
)

// Dispatcher receives notifications after their transaction committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// Service moves practitioners through the approval workflow.
type Service struct {
	states     repository.AccessStateRepository
	dispatcher Dispatcher
	now        func() time.Time
}

func NewService(states repository.AccessStateRepository, dispatcher Dispatcher) *Service {
	return &Service{states: states, dispatcher: dispatcher, now: time.Now}
}

// transition describes one administrator action.
type transition struct {
	op     string
	cause  string
	from   models.ApprovalStatus
	to     models.ApprovalStatus
	kind   string
	reason string
	apply  func(s *models.AccessState, now time.Time)
}

// Approve grants a PENDING practitioner access. Entitlement still requires
// healthy billing.
func (s *Service) Approve(ctx context.Context, accountID uint) (*models.AccessState, error) {
	return s.run(ctx, accountID, transition{
		op:    "approval.Approve",
		cause: "approved",
		from:  models.ApprovalPending,
		to:    models.ApprovalActive,
		kind:  models.NotificationApproved,
		apply: func(st *models.AccessState, now time.Time) {
			st.ApprovedAt = &now
		},
	})
}

// Reject closes the review of a PENDING practitioner.
func (s *Service) Reject(ctx context.Context, accountID uint, reason string) (*models.AccessState, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = notify.DefaultRejectionReason
	}
	return s.run(ctx, accountID, transition{
		op:     "approval.Reject",
		cause:  "rejected",
		from:   models.ApprovalPending,
		to:     models.ApprovalRejected,
		kind:   models.NotificationRejected,
		reason: reason,
		apply: func(st *models.AccessState, now time.Time) {
			st.RejectionReason = reason
			st.RejectedAt = &now
		},
	})
}

// Revoke cancels the approval of an ACTIVE practitioner.
func (s *Service) Revoke(ctx context.Context, accountID uint, reason string) (*models.AccessState, error) {
	reason = strings.TrimSpace(reason)
	return s.run(ctx, accountID, transition{
		op:     "approval.Revoke",
		cause:  "revoked",
		from:   models.ApprovalActive,
		to:     models.ApprovalCancelled,
		kind:   models.NotificationAccessRevoked,
		reason: reason,
		apply: func(st *models.AccessState, now time.Time) {
			st.CancelledAt = &now
		},
	})
}

// ListPending returns practitioners awaiting review, newest first.
func (s *Service) ListPending(ctx context.Context) ([]models.AccessState, error) {
	return s.states.ListPending(ctx)
}

// History returns the most recent transitions of an account.
func (s *Service) History(ctx context.Context, accountID uint, limit int) ([]models.AccessStateTransition, error) {
	return s.states.ListTransitions(ctx, accountID, limit)
}

func (s *Service) run(ctx context.Context, accountID uint, tr transition) (*models.AccessState, error) {
	var (
		state        *models.AccessState
		notification models.Notification
	)

	err := repository.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.states.Transaction(ctx, func(tx repository.AccessStateTx) error {
			current, err := tx.LockByAccountID(accountID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.New(apperror.KindNotFound, tr.op, fmt.Sprintf("no access state for account %d", accountID))
			}
			if err != nil {
				return err
			}
			if current.ApprovalStatus != tr.from || !models.CanTransition(current.ApprovalStatus, tr.to) {
				return apperror.New(apperror.KindInvalidTransition, tr.op,
					fmt.Sprintf("account %d is %s, expected %s", accountID, current.ApprovalStatus, tr.from))
			}

			before := *current
			current.ApprovalStatus = tr.to
			tr.apply(current, s.now())
			current.Recompute()

			if err := tx.Save(current); err != nil {
				return err
			}
			if err := tx.RecordTransition(models.NewAccessStateTransition(models.TransitionSourceAdmin, tr.cause, "", &before, current)); err != nil {
				return fmt.Errorf("record transition: %w", err)
			}
			n := notify.Build(accountID, tr.kind, tr.reason)
			if err := tx.CreateNotification(&n); err != nil {
				return fmt.Errorf("create notification: %w", err)
			}

			state, notification = current, n
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.TransitionsTotal.WithLabelValues(models.TransitionSourceAdmin, tr.cause).Inc()
	log.Infof("[Approval] Account %d %s: approval=%s billing=%s entitled=%t",
		accountID, tr.cause, state.ApprovalStatus, state.BillingStatus, state.IsEntitled)

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), notification); err != nil {
			log.Warnf("[Approval] Dispatch of notification %d (%s) failed, it stays pending: %v", notification.ID, notification.Kind, err)
		}
	}
	return state, nil
}
