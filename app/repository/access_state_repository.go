package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nutrixpert/nutrixpert/app/models"
)

// accessStateRepository implements the AccessStateRepository interface
type accessStateRepository struct {
	db *gorm.DB
}

// NewAccessStateRepository creates a new access state repository instance
func NewAccessStateRepository(db *gorm.DB) AccessStateRepository {
	return &accessStateRepository{db: db}
}

// Transaction runs fn in a database transaction. Returning an error rolls
// back everything fn wrote, including dedupe records and notifications.
func (r *accessStateRepository) Transaction(ctx context.Context, fn func(tx AccessStateTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&accessStateTx{db: tx})
	})
}

// GetByAccountID retrieves the access state of an account without locking
func (r *accessStateRepository) GetByAccountID(ctx context.Context, accountID uint) (*models.AccessState, error) {
	var state models.AccessState
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ListPending returns practitioners awaiting review, newest first
func (r *accessStateRepository) ListPending(ctx context.Context) ([]models.AccessState, error) {
	var states []models.AccessState
	err := r.db.WithContext(ctx).
		Preload("Account").
		Where("approval_status = ?", string(models.ApprovalPending)).
		Order("created_at DESC").
		Order("id DESC").
		Find(&states).Error
	return states, err
}

// ListTransitions returns the most recent audit entries of an account
func (r *accessStateRepository) ListTransitions(ctx context.Context, accountID uint, limit int) ([]models.AccessStateTransition, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var transitions []models.AccessStateTransition
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&transitions).Error
	return transitions, err
}

// PruneWebhookEvents deletes dedupe records older than before
func (r *accessStateRepository) PruneWebhookEvents(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.BillingWebhookEvent{})
	return res.RowsAffected, res.Error
}

type accessStateTx struct {
	db *gorm.DB
}

func (t *accessStateTx) LockByAccountID(accountID uint) (*models.AccessState, error) {
	var state models.AccessState
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (t *accessStateTx) LockBySubscriptionRef(ref string) (*models.AccessState, error) {
	var state models.AccessState
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("billing_subscription_ref = ?", ref).
		First(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (t *accessStateTx) GetAccount(accountID uint) (*models.User, error) {
	var user models.User
	if err := t.db.First(&user, accountID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (t *accessStateTx) Create(state *models.AccessState) error {
	return t.db.Omit("Account").Create(state).Error
}

// Save writes state guarded by its version. A lost race yields
// ErrConcurrentUpdate and leaves the row untouched.
func (t *accessStateTx) Save(state *models.AccessState) error {
	prev := state.Version
	now := time.Now()
	res := t.db.Model(&models.AccessState{}).
		Where("id = ? AND version = ?", state.ID, prev).
		Updates(map[string]interface{}{
			"approval_status":          string(state.ApprovalStatus),
			"billing_status":           state.BillingStatus,
			"billing_customer_ref":     state.BillingCustomerRef,
			"billing_subscription_ref": state.BillingSubscriptionRef,
			"billing_price_ref":        state.BillingPriceRef,
			"billing_period_end":       state.BillingPeriodEnd,
			"billing_event_at":         state.BillingEventAt,
			"is_entitled":              state.IsEntitled,
			"rejection_reason":         state.RejectionReason,
			"approved_at":              state.ApprovedAt,
			"rejected_at":              state.RejectedAt,
			"cancelled_at":             state.CancelledAt,
			"version":                  prev + 1,
			"updated_at":               now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	state.Version = prev + 1
	state.UpdatedAt = now
	return nil
}

// RecordEvent inserts the dedupe record. It reports false when the same
// (subscription, event id) pair was already recorded.
func (t *accessStateTx) RecordEvent(event *models.BillingWebhookEvent) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscription_ref"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *accessStateTx) CreateNotification(n *models.Notification) error {
	return t.db.Create(n).Error
}

func (t *accessStateTx) RecordTransition(tr *models.AccessStateTransition) error {
	return t.db.Create(tr).Error
}

// RetryOnConflict reruns fn while it loses optimistic-lock or first-insert
// races, with a short jittered backoff.
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.WithJitter(10*time.Millisecond, retry.NewExponential(20*time.Millisecond)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return retry.RetryableError(err)
		}
		return err
	})
}
