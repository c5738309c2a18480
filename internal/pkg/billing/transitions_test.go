package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrixpert/nutrixpert/app/models"
)

var (
	periodJan = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	periodFeb = time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
)

func stateWith(approval models.ApprovalStatus, billing string, periodEnd *time.Time) *models.AccessState {
	ref := "sub_1"
	s := &models.AccessState{
		AccountID:              1,
		ApprovalStatus:         approval,
		BillingStatus:          billing,
		BillingCustomerRef:     "cus_1",
		BillingSubscriptionRef: &ref,
		BillingPriceRef:        "price_pro",
		BillingPeriodEnd:       periodEnd,
	}
	s.Recompute()
	return s
}

func event(typ EventType, periodEnd *time.Time) CanonicalEvent {
	return CanonicalEvent{ID: "evt", Type: typ, ProviderType: "test", SubscriptionRef: "sub_1", AccountID: 1, PeriodEnd: periodEnd}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name         string
		state        *models.AccessState
		event        CanonicalEvent
		outcome      Outcome
		notification string
		approval     models.ApprovalStatus
		billing      string
		entitled     bool
	}{
		{
			name:         "checkout moves NONE to PENDING",
			state:        models.NewAccessState(1),
			event:        event(EventCheckoutCompleted, nil),
			outcome:      OutcomeApplied,
			notification: models.NotificationPaymentReceived,
			approval:     models.ApprovalPending,
			billing:      models.BillingStatusActive,
		},
		{
			name:         "checkout on canceled ACTIVE account restores access",
			state:        stateWith(models.ApprovalActive, models.BillingStatusCanceled, nil),
			event:        event(EventCheckoutCompleted, &periodFeb),
			outcome:      OutcomeApplied,
			notification: models.NotificationAccessRestored,
			approval:     models.ApprovalActive,
			billing:      models.BillingStatusActive,
			entitled:     true,
		},
		{
			name:     "checkout never reopens a REJECTED account",
			state:    stateWith(models.ApprovalRejected, models.BillingStatusCanceled, nil),
			event:    event(EventCheckoutCompleted, nil),
			outcome:  OutcomeApplied,
			approval: models.ApprovalRejected,
			billing:  models.BillingStatusActive,
		},
		{
			name:     "renewal on ACTIVE account",
			state:    stateWith(models.ApprovalActive, models.BillingStatusActive, &periodJan),
			event:    event(EventInvoicePaid, &periodFeb),
			outcome:  OutcomeApplied,
			approval: models.ApprovalActive,
			billing:  models.BillingStatusActive,
			entitled: true,
		},
		{
			name:         "payment after failure restores access",
			state:        stateWith(models.ApprovalActive, models.BillingStatusPastDue, &periodJan),
			event:        event(EventInvoicePaid, &periodJan),
			outcome:      OutcomeApplied,
			notification: models.NotificationAccessRestored,
			approval:     models.ApprovalActive,
			billing:      models.BillingStatusActive,
			entitled:     true,
		},
		{
			name:     "paid invoice for an older period is stale",
			state:    stateWith(models.ApprovalActive, models.BillingStatusPastDue, &periodFeb),
			event:    event(EventInvoicePaid, &periodJan),
			outcome:  OutcomeStale,
			approval: models.ApprovalActive,
			billing:  models.BillingStatusPastDue,
		},
		{
			name:     "same paid invoice twice is a noop",
			state:    stateWith(models.ApprovalActive, models.BillingStatusActive, &periodFeb),
			event:    event(EventInvoicePaid, &periodFeb),
			outcome:  OutcomeNoop,
			approval: models.ApprovalActive,
			billing:  models.BillingStatusActive,
			entitled: true,
		},
		{
			name:     "paid invoice on PENDING account keeps it gated",
			state:    stateWith(models.ApprovalPending, models.BillingStatusActive, &periodJan),
			event:    event(EventInvoicePaid, &periodFeb),
			outcome:  OutcomeApplied,
			approval: models.ApprovalPending,
			billing:  models.BillingStatusActive,
		},
		{
			name:         "failed payment revokes ACTIVE account",
			state:        stateWith(models.ApprovalActive, models.BillingStatusActive, &periodJan),
			event:        event(EventInvoiceFailed, &periodFeb),
			outcome:      OutcomeApplied,
			notification: models.NotificationPaymentFailed,
			approval:     models.ApprovalActive,
			billing:      models.BillingStatusPastDue,
		},
		{
			name:     "failed payment on PENDING account is recorded silently",
			state:    stateWith(models.ApprovalPending, models.BillingStatusActive, &periodJan),
			event:    event(EventInvoiceFailed, &periodFeb),
			outcome:  OutcomeApplied,
			approval: models.ApprovalPending,
			billing:  models.BillingStatusPastDue,
		},
		{
			name:     "failed payment for an older period is stale",
			state:    stateWith(models.ApprovalActive, models.BillingStatusActive, &periodFeb),
			event:    event(EventInvoiceFailed, &periodJan),
			outcome:  OutcomeStale,
			approval: models.ApprovalActive,
			billing:  models.BillingStatusActive,
			entitled: true,
		},
		{
			name:     "second failure is a noop",
			state:    stateWith(models.ApprovalActive, models.BillingStatusPastDue, &periodFeb),
			event:    event(EventInvoiceFailed, &periodFeb),
			outcome:  OutcomeNoop,
			approval: models.ApprovalActive,
			billing:  models.BillingStatusPastDue,
		},
		{
			name:         "cancellation revokes ACTIVE account",
			state:        stateWith(models.ApprovalActive, models.BillingStatusActive, &periodFeb),
			event:        event(EventSubscriptionCanceled, nil),
			outcome:      OutcomeApplied,
			notification: models.NotificationSubscriptionCanceled,
			approval:     models.ApprovalActive,
			billing:      models.BillingStatusCanceled,
		},
		{
			name:     "cancellation after failure sends nothing more",
			state:    stateWith(models.ApprovalActive, models.BillingStatusPastDue, &periodFeb),
			event:    event(EventSubscriptionCanceled, nil),
			outcome:  OutcomeApplied,
			approval: models.ApprovalActive,
			billing:  models.BillingStatusCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := reconcile(tt.state, tt.event)
			assert.Equal(t, tt.outcome, d.outcome)
			assert.Equal(t, tt.notification, d.notification)
			assert.Equal(t, tt.approval, tt.state.ApprovalStatus)
			assert.Equal(t, tt.billing, tt.state.BillingStatus)
			assert.Equal(t, tt.entitled, tt.state.IsEntitled)
		})
	}
}

func TestReconcileCancellationClearsBillingRefs(t *testing.T) {
	s := stateWith(models.ApprovalActive, models.BillingStatusActive, &periodFeb)
	reconcile(s, event(EventSubscriptionCanceled, nil))

	assert.Nil(t, s.BillingSubscriptionRef)
	assert.Nil(t, s.BillingPeriodEnd)
	assert.Empty(t, s.BillingPriceRef)
	assert.Equal(t, "cus_1", s.BillingCustomerRef)
}

func TestReconcileLeavesShallowCopyIntact(t *testing.T) {
	s := stateWith(models.ApprovalActive, models.BillingStatusActive, &periodJan)
	before := *s

	reconcile(s, event(EventInvoicePaid, &periodFeb))

	require.NotNil(t, before.BillingPeriodEnd)
	assert.True(t, periodJan.Equal(*before.BillingPeriodEnd))
	assert.True(t, periodFeb.Equal(*s.BillingPeriodEnd))
}

// No billing event moves approval backwards and entitlement always implies ACTIVE.
func TestReconcileInvariants(t *testing.T) {
	approvals := []models.ApprovalStatus{models.ApprovalNone, models.ApprovalPending, models.ApprovalActive, models.ApprovalRejected, models.ApprovalCancelled}
	billings := []string{models.BillingStatusNone, models.BillingStatusActive, models.BillingStatusPastDue, models.BillingStatusCanceled}
	events := []EventType{EventCheckoutCompleted, EventInvoicePaid, EventInvoiceFailed, EventSubscriptionCanceled}
	periods := []*time.Time{nil, &periodJan, &periodFeb}

	for _, a := range approvals {
		for _, b := range billings {
			for _, typ := range events {
				for _, p := range periods {
					s := stateWith(a, b, &periodJan)
					reconcile(s, event(typ, p))

					if a != models.ApprovalNone {
						assert.Equal(t, a, s.ApprovalStatus, "%s/%s/%s", a, b, typ)
					} else {
						assert.Contains(t, []models.ApprovalStatus{models.ApprovalNone, models.ApprovalPending}, s.ApprovalStatus)
					}
					if s.IsEntitled {
						assert.Equal(t, models.ApprovalActive, s.ApprovalStatus)
					}
				}
			}
		}
	}
}

func TestReconcileLateFailureForPaidPeriod(t *testing.T) {
	paidAt := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	failedAt := paidAt.Add(-48 * time.Hour)

	s := stateWith(models.ApprovalActive, models.BillingStatusActive, &periodJan)
	paid := event(EventInvoicePaid, &periodFeb)
	paid.OccurredAt = paidAt
	d := reconcile(s, paid)
	require.Equal(t, OutcomeApplied, d.outcome)
	require.NotNil(t, s.BillingEventAt)
	assert.True(t, paidAt.Equal(*s.BillingEventAt))

	failed := event(EventInvoiceFailed, &periodFeb)
	failed.OccurredAt = failedAt
	d = reconcile(s, failed)
	assert.Equal(t, OutcomeStale, d.outcome)
	assert.Empty(t, d.notification)
	assert.Equal(t, models.BillingStatusActive, s.BillingStatus)
	assert.True(t, s.IsEntitled)
	assert.True(t, paidAt.Equal(*s.BillingEventAt))

	// A later failure for the same period still applies.
	failed.OccurredAt = paidAt.Add(time.Hour)
	d = reconcile(s, failed)
	assert.Equal(t, OutcomeApplied, d.outcome)
	assert.Equal(t, models.NotificationPaymentFailed, d.notification)
	assert.False(t, s.IsEntitled)
}

func TestReconcileNoopAdvancesBillingEventAt(t *testing.T) {
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s := stateWith(models.ApprovalActive, models.BillingStatusActive, &periodJan)
	paid := event(EventInvoicePaid, &periodJan)
	paid.OccurredAt = at

	d := reconcile(s, paid)
	assert.Equal(t, OutcomeNoop, d.outcome)
	assert.True(t, d.touched)

	d = reconcile(s, paid)
	assert.Equal(t, OutcomeNoop, d.outcome)
	assert.False(t, d.touched, "same provider time")
}
