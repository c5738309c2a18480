package models

import "time"

const BillingProviderStripe = "stripe"

const (
	WebhookOutcomeApplied = "applied"
	WebhookOutcomeNoop    = "noop"
	WebhookOutcomeStale   = "stale"
	WebhookOutcomeIgnored = "ignored"
)

// BillingWebhookEvent is the dedupe record of an applied billing event. It is
// written in the same transaction as the state change it caused and pruned
// after the dedupe window.
type BillingWebhookEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index" json:"provider"`
	SubscriptionRef string    `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_sub_event,unique,priority:1" json:"subscription_ref"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_billing_webhook_events_sub_event,unique,priority:2" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	AccountID       uint      `gorm:"not null;default:0;index" json:"account_id"`
	Outcome         string    `gorm:"type:varchar(20);not null;default:''" json:"outcome"`
	ProcessedAt     time.Time `gorm:"type:timestamp" json:"processed_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
