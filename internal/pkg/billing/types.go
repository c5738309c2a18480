package billing

import (
	"strings"
	"time"

	"github.com/nutrixpert/nutrixpert/app/models"
)

// EventType is the provider-neutral kind of a billing event.
type EventType string

const (
	EventCheckoutCompleted    EventType = "CHECKOUT_COMPLETED"
	EventInvoicePaid          EventType = "INVOICE_PAID"
	EventInvoiceFailed        EventType = "INVOICE_FAILED"
	EventSubscriptionCanceled EventType = "SUBSCRIPTION_CANCELED"
	EventUnhandled            EventType = "UNHANDLED"
)

// CanonicalEvent is the validated form of a provider webhook. Nothing else
// from the provider payload reaches the reconciliation engine.
type CanonicalEvent struct {
	ID              string     `validate:"required,max=191"`
	Type            EventType  `validate:"oneof=CHECKOUT_COMPLETED INVOICE_PAID INVOICE_FAILED SUBSCRIPTION_CANCELED UNHANDLED"`
	ProviderType    string     `validate:"required"`
	SubscriptionRef string     `validate:"required_unless=Type UNHANDLED,max=191"`
	CustomerRef     string     `validate:"max=191"`
	AccountID       uint       `validate:"required_if=Type CHECKOUT_COMPLETED"`
	PriceRef        string     `validate:"max=191"`
	PeriodEnd       *time.Time `validate:"omitempty"`
	OccurredAt      time.Time
}

// cause is the label used in logs, metrics and the transition log.
func (e CanonicalEvent) cause() string {
	return strings.ToLower(string(e.Type))
}

// Outcome describes what Apply did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = models.WebhookOutcomeApplied
	OutcomeNoop      Outcome = models.WebhookOutcomeNoop
	OutcomeStale     Outcome = models.WebhookOutcomeStale
	OutcomeIgnored   Outcome = models.WebhookOutcomeIgnored
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnhandled Outcome = "unhandled"
)

// Result is returned by Apply.
type Result struct {
	Outcome       Outcome
	AccountID     uint
	Before        *models.AccessStateSnapshot
	After         *models.AccessStateSnapshot
	Notifications []models.Notification
}

// SubscriptionDetails are the fields a checkout event may lack.
type SubscriptionDetails struct {
	CustomerRef string
	PriceRef    string
	PeriodEnd   *time.Time
}
