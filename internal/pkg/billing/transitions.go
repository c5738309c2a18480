package billing

import (
	"time"

	"github.com/nutrixpert/nutrixpert/app/models"
)

// decision is what reconcile concluded for one event.
type decision struct {
	outcome      Outcome
	notification string
	// touched is set when only BillingEventAt moved.
	touched bool
}

// reconcile applies ev to s in place and reports the outcome plus the
// notification kind to emit, if any. It is the single transition table of
// the billing side; it performs no I/O. Pointer fields of s are replaced,
// never written through, so a shallow copy taken before the call stays intact.
func reconcile(s *models.AccessState, ev CanonicalEvent) decision {
	before := s.Snapshot()
	wasEntitled := s.IsEntitled

	if ev.Type == EventUnhandled {
		return decision{outcome: OutcomeUnhandled}
	}
	if (ev.Type == EventInvoicePaid || ev.Type == EventInvoiceFailed) && isStale(s, ev) {
		return decision{outcome: OutcomeStale}
	}
	touched := s.ObserveBillingEvent(ev.OccurredAt)

	switch ev.Type {
	case EventCheckoutCompleted:
		if ev.CustomerRef != "" {
			s.BillingCustomerRef = ev.CustomerRef
		}
		ref := ev.SubscriptionRef
		s.BillingSubscriptionRef = &ref
		if ev.PriceRef != "" {
			s.BillingPriceRef = ev.PriceRef
		}
		if ev.PeriodEnd != nil {
			s.BillingPeriodEnd = copyTime(ev.PeriodEnd)
		}
		s.BillingStatus = models.BillingStatusActive

		if s.ApprovalStatus == models.ApprovalNone {
			s.ApprovalStatus = models.ApprovalPending
			s.Recompute()
			return decision{outcome: OutcomeApplied, notification: models.NotificationPaymentReceived}
		}

	case EventInvoicePaid:
		if ev.PriceRef != "" {
			s.BillingPriceRef = ev.PriceRef
		}
		if ev.PeriodEnd != nil {
			s.BillingPeriodEnd = copyTime(ev.PeriodEnd)
		}
		if ev.CustomerRef != "" && s.BillingCustomerRef == "" {
			s.BillingCustomerRef = ev.CustomerRef
		}
		s.BillingStatus = models.BillingStatusActive

	case EventInvoiceFailed:
		s.BillingStatus = models.BillingStatusPastDue

	case EventSubscriptionCanceled:
		s.BillingSubscriptionRef = nil
		s.BillingPriceRef = ""
		s.BillingPeriodEnd = nil
		s.BillingStatus = models.BillingStatusCanceled

	default:
		return decision{outcome: OutcomeUnhandled}
	}

	s.Recompute()
	if before.Equal(s.Snapshot()) {
		return decision{outcome: OutcomeNoop, touched: touched}
	}

	d := decision{outcome: OutcomeApplied}
	switch {
	case wasEntitled && !s.IsEntitled && ev.Type == EventInvoiceFailed:
		d.notification = models.NotificationPaymentFailed
	case wasEntitled && !s.IsEntitled && ev.Type == EventSubscriptionCanceled:
		d.notification = models.NotificationSubscriptionCanceled
	case !wasEntitled && s.IsEntitled:
		d.notification = models.NotificationAccessRestored
	}
	return d
}

// isStale reports whether ev describes a billing period older than the one
// already stored, or is a failure for the stored period that happened before
// the last billing event applied to it. Events without a period are never
// stale.
func isStale(s *models.AccessState, ev CanonicalEvent) bool {
	if ev.PeriodEnd == nil || s.BillingPeriodEnd == nil {
		return false
	}
	if ev.PeriodEnd.Before(*s.BillingPeriodEnd) {
		return true
	}
	return ev.Type == EventInvoiceFailed &&
		ev.PeriodEnd.Equal(*s.BillingPeriodEnd) &&
		s.BillingEventAt != nil && !ev.OccurredAt.IsZero() &&
		ev.OccurredAt.Before(*s.BillingEventAt)
}

func copyTime(t *time.Time) *time.Time {
	c := *t
	return &c
}
