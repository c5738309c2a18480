package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NotificationPaymentReceived      = "PAYMENT_RECEIVED"
	NotificationApproved             = "APPROVED"
	NotificationRejected             = "REJECTED"
	NotificationPaymentFailed        = "PAYMENT_FAILED"
	NotificationAccessRestored       = "ACCESS_RESTORED"
	NotificationSubscriptionCanceled = "SUBSCRIPTION_CANCELED"
	NotificationAccessRevoked        = "ACCESS_REVOKED"
)

const (
	EmailStatusNone    = "none"
	EmailStatusPending = "pending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

// Notification is an in-app message to a practitioner. Rows flagged with
// SendEmail double as the email outbox; DeliveryKey is the idempotency key of
// the outbound delivery.
type Notification struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	AccountID     uint       `gorm:"not null;index" json:"account_id"`
	Kind          string     `gorm:"type:varchar(40);not null" json:"kind" validate:"oneof=PAYMENT_RECEIVED APPROVED REJECTED PAYMENT_FAILED ACCESS_RESTORED SUBSCRIPTION_CANCELED ACCESS_REVOKED"`
	Title         string     `gorm:"type:varchar(200);not null" json:"title"`
	Message       string     `gorm:"type:text" json:"message"`
	Read          bool       `gorm:"not null;default:false" json:"read"`
	SendEmail     bool       `gorm:"not null;default:false" json:"-"`
	EmailStatus   string     `gorm:"type:varchar(20);not null;default:'none';index" json:"email_status"`
	EmailAttempts int        `gorm:"not null;default:0" json:"-"`
	EmailError    string     `gorm:"type:text" json:"-"`
	EmailSentAt   *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	DeliveryKey   string     `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MarkAsRead flags the notification as read.
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.Read = true
	return db.Model(n).Update("read", true).Error
}

// NeedsDelivery reports whether an email is still owed for this notification.
func (n *Notification) NeedsDelivery() bool {
	return n.SendEmail && n.EmailStatus == EmailStatusPending
}
