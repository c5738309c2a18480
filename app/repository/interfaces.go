package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nutrixpert/nutrixpert/app/models"
)

// ErrConcurrentUpdate is returned when a versioned save lost the race against
// another writer. The whole transaction should be retried.
var ErrConcurrentUpdate = errors.New("access state was modified concurrently")

// UserRepository defines the read operations on accounts
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// AccessStateRepository defines the interface for access-state persistence.
// Mutations happen inside Transaction through an AccessStateTx.
type AccessStateRepository interface {
	Transaction(ctx context.Context, fn func(tx AccessStateTx) error) error
	GetByAccountID(ctx context.Context, accountID uint) (*models.AccessState, error)
	ListPending(ctx context.Context) ([]models.AccessState, error)
	ListTransitions(ctx context.Context, accountID uint, limit int) ([]models.AccessStateTransition, error)
	PruneWebhookEvents(ctx context.Context, before time.Time) (int64, error)
}

// AccessStateTx is the transactional view used by state transitions. Rows
// returned by the Lock methods stay locked until the transaction ends.
type AccessStateTx interface {
	LockByAccountID(accountID uint) (*models.AccessState, error)
	LockBySubscriptionRef(ref string) (*models.AccessState, error)
	GetAccount(accountID uint) (*models.User, error)
	Create(state *models.AccessState) error
	Save(state *models.AccessState) error
	RecordEvent(event *models.BillingWebhookEvent) (bool, error)
	CreateNotification(n *models.Notification) error
	RecordTransition(t *models.AccessStateTransition) error
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	ListByAccount(ctx context.Context, accountID uint, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, accountID, id uint) error
	ListPendingDeliveries(ctx context.Context, createdBefore time.Time, limit int) ([]models.Notification, error)
	MarkEmailSent(ctx context.Context, id uint) error
	RecordEmailAttempt(ctx context.Context, id uint, attemptErr error) error
	MarkEmailFailed(ctx context.Context, id uint, reason string) error
}
