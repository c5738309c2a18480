package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
	"github.com/nutrixpert/nutrixpert/internal/pkg/billing"
	"github.com/nutrixpert/nutrixpert/internal/pkg/metrics"
)

// EventIngestor verifies and parses provider webhook payloads.
type EventIngestor interface {
	Ingest(payload []byte, sigHeader string) (billing.CanonicalEvent, error)
}

// EventApplier reconciles canonical events into access state.
type EventApplier interface {
	Apply(ctx context.Context, ev billing.CanonicalEvent) (*billing.Result, error)
}

// BillingController receives Stripe webhooks.
type BillingController struct {
	ingestor EventIngestor
	service  EventApplier
}

func NewBillingController(ingestor EventIngestor, service EventApplier) *BillingController {
	return &BillingController{ingestor: ingestor, service: service}
}

// HandleStripeWebhook answers 200 for everything the engine handled,
// including duplicates and ignored events, so Stripe stops retrying. Storage
// failures answer 500 and Stripe redelivers.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	start := time.Now()
	eventType := "unknown"
	outcome := "error"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, outcome).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if len(c.Body()) > MaxWebhookBodyBytes {
		outcome = "too_large"
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "payload_too_large"})
	}
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ev, err := bc.ingestor.Ingest(rawBody, signature)
	if err != nil {
		if ev.ProviderType != "" {
			eventType = ev.ProviderType
		}
		outcome = string(apperror.KindOf(err))
		log.Warnf("[Billing] Rejected webhook (event=%q type=%q signature_header=%t): %v", ev.ID, ev.ProviderType, signature != "", err)
		return respondError(c, err)
	}
	eventType = ev.ProviderType

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := bc.service.Apply(ctx, ev)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindUnknownSubscription {
			outcome = string(billing.OutcomeIgnored)
			return c.JSON(fiber.Map{"ok": true, "outcome": billing.OutcomeIgnored})
		}
		log.Errorf("[Billing] Failed to apply %s event %s: %v", ev.ProviderType, ev.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	outcome = string(res.Outcome)
	return c.JSON(fiber.Map{"ok": true, "outcome": res.Outcome})
}
