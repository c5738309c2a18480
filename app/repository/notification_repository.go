package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/models"
)

// notificationRepository implements the NotificationRepository interface
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// GetByID retrieves a notification by its ID
func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByAccount returns the newest notifications of an account
func (r *notificationRepository) ListByAccount(ctx context.Context, accountID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if unreadOnly {
		query = query.Where(map[string]interface{}{"read": false})
	}
	var notifications []models.Notification
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

// MarkAsRead marks a notification of the given account as read
func (r *notificationRepository) MarkAsRead(ctx context.Context, accountID, id uint) error {
	var n models.Notification
	db := r.db.WithContext(ctx)
	if err := db.Where("id = ? AND account_id = ?", id, accountID).First(&n).Error; err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	return n.MarkAsRead(db)
}

// ListPendingDeliveries returns notifications whose email was never confirmed,
// oldest first
func (r *notificationRepository) ListPendingDeliveries(ctx context.Context, createdBefore time.Time, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Where("email_status = ? AND created_at < ?", models.EmailStatusPending, createdBefore).
		Order("id ASC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// MarkEmailSent records a successful delivery
func (r *notificationRepository) MarkEmailSent(ctx context.Context, id uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email_status":   models.EmailStatusSent,
			"email_sent_at":  &now,
			"email_error":    "",
			"email_attempts": gorm.Expr("email_attempts + 1"),
		}).Error
}

// RecordEmailAttempt counts a failed attempt that will be retried
func (r *notificationRepository) RecordEmailAttempt(ctx context.Context, id uint, attemptErr error) error {
	msg := ""
	if attemptErr != nil {
		msg = attemptErr.Error()
	}
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email_error":    msg,
			"email_attempts": gorm.Expr("email_attempts + 1"),
		}).Error
}

// MarkEmailFailed gives up on a delivery after retries are exhausted
func (r *notificationRepository) MarkEmailFailed(ctx context.Context, id uint, reason string) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND email_status = ?", id, models.EmailStatusPending).
		Updates(map[string]interface{}{
			"email_status": models.EmailStatusFailed,
			"email_error":  reason,
		}).Error
}
