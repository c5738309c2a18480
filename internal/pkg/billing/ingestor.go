package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
)

const (
	stripeCheckoutCompleted   = "checkout.session.completed"
	stripeInvoicePaid         = "invoice.paid"
	stripeInvoiceSucceeded    = "invoice.payment_succeeded"
	stripeInvoiceFailed       = "invoice.payment_failed"
	stripeSubscriptionDeleted = "customer.subscription.deleted"
)

// Account ids are read from checkout metadata under either key, falling back
// to client_reference_id.
var accountMetadataKeys = []string{"user_id", "userId"}

// Ingestor verifies Stripe webhooks and maps them to canonical events.
type Ingestor struct {
	secret    string
	tolerance time.Duration
	validate  *validator.Validate
}

// NewIngestor creates an ingestor for the given endpoint secret.
func NewIngestor(secret string, tolerance time.Duration) *Ingestor {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Ingestor{
		secret:    secret,
		tolerance: tolerance,
		validate:  validator.New(),
	}
}

// Ingest verifies the signature of a raw webhook body and maps it. Event
// types the engine does not handle map to EventUnhandled without error.
func (i *Ingestor) Ingest(payload []byte, sigHeader string) (CanonicalEvent, error) {
	const op = "billing.Ingest"

	if strings.TrimSpace(i.secret) == "" {
		return CanonicalEvent{}, apperror.New(apperror.KindInvalidSignature, op, "webhook secret not configured")
	}
	if strings.TrimSpace(sigHeader) == "" {
		return CanonicalEvent{}, apperror.New(apperror.KindInvalidSignature, op, "missing Stripe-Signature header")
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, i.secret, i.tolerance); err != nil {
		return CanonicalEvent{}, apperror.Wrap(apperror.KindInvalidSignature, op, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return CanonicalEvent{}, apperror.Wrap(apperror.KindMalformedEvent, op, err)
	}

	// From here on errors carry the partially filled event for logs and metrics.
	ev := CanonicalEvent{
		ID:           strings.TrimSpace(event.ID),
		ProviderType: string(event.Type),
		OccurredAt:   time.Now().UTC(),
	}
	if event.Type == "" || event.Data == nil || len(event.Data.Raw) == 0 {
		return ev, apperror.New(apperror.KindMalformedEvent, op, "event type or data missing")
	}
	if event.Created > 0 {
		ev.OccurredAt = time.Unix(event.Created, 0).UTC()
	}
	if ev.ID == "" {
		sum := sha256.Sum256(payload)
		ev.ID = "hash:" + hex.EncodeToString(sum[:])
	}

	var err error
	switch ev.ProviderType {
	case stripeCheckoutCompleted:
		err = mapCheckout(event.Data.Raw, &ev)
	case stripeInvoicePaid, stripeInvoiceSucceeded:
		ev.Type = EventInvoicePaid
		err = mapInvoice(event.Data.Raw, &ev)
	case stripeInvoiceFailed:
		ev.Type = EventInvoiceFailed
		err = mapInvoice(event.Data.Raw, &ev)
	case stripeSubscriptionDeleted:
		ev.Type = EventSubscriptionCanceled
		err = mapSubscription(event.Data.Raw, &ev)
	default:
		ev.Type = EventUnhandled
	}
	if err != nil {
		log.Warnf("[Billing] Malformed Stripe event %s (%s): %v", ev.ID, ev.ProviderType, err)
		return ev, apperror.Wrap(apperror.KindMalformedEvent, op, err)
	}
	if ev.Type == EventUnhandled {
		log.Infof("[Billing] Unhandled Stripe event %s (%s)", ev.ID, ev.ProviderType)
	}

	if err := i.validate.Struct(ev); err != nil {
		log.Warnf("[Billing] Invalid Stripe event %s (%s): %v", ev.ID, ev.ProviderType, err)
		return ev, apperror.Wrap(apperror.KindMalformedEvent, op, err)
	}
	return ev, nil
}

func mapCheckout(raw json.RawMessage, ev *CanonicalEvent) error {
	var session checkoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("decode checkout.session: %w", err)
	}

	// One-off payments carry no subscription and never grant access
	if session.Mode != "" && session.Mode != "subscription" {
		ev.Type = EventUnhandled
		return nil
	}

	ev.Type = EventCheckoutCompleted
	ev.SubscriptionRef = string(session.Subscription)
	ev.CustomerRef = string(session.Customer)
	if session.LineItems != nil && len(session.LineItems.Data) > 0 && session.LineItems.Data[0].Price != nil {
		ev.PriceRef = string(session.LineItems.Data[0].Price.ID)
	}

	accountID, err := accountIDOf(session)
	if err != nil {
		return err
	}
	// Checkouts started outside the practitioner signup carry no account
	if accountID == 0 {
		ev.Type = EventUnhandled
		return nil
	}
	ev.AccountID = accountID
	return nil
}

func accountIDOf(session checkoutSession) (uint, error) {
	raw := ""
	for _, key := range accountMetadataKeys {
		if v := strings.TrimSpace(session.Metadata[key]); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		raw = strings.TrimSpace(session.ClientReferenceID)
	}
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("account id %q is not a positive integer", raw)
	}
	return uint(id), nil
}

func mapInvoice(raw json.RawMessage, ev *CanonicalEvent) error {
	var inv invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	ev.SubscriptionRef = inv.subscriptionRef()
	ev.CustomerRef = string(inv.Customer)
	// One-off and manual invoices belong to no subscription
	if ev.SubscriptionRef == "" {
		ev.Type = EventUnhandled
		return nil
	}
	ev.PriceRef, ev.PeriodEnd = inv.priceAndPeriod()
	return nil
}

func mapSubscription(raw json.RawMessage, ev *CanonicalEvent) error {
	var sub subscriptionObject
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	ev.SubscriptionRef = sub.ID
	ev.CustomerRef = string(sub.Customer)
	return nil
}
