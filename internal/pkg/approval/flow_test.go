package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/approval"
	"github.com/nutrixpert/nutrixpert/internal/pkg/billing"
	"github.com/nutrixpert/nutrixpert/internal/pkg/jobqueue"
	"github.com/nutrixpert/nutrixpert/internal/pkg/notify"
	"github.com/nutrixpert/nutrixpert/internal/pkg/testutil"
)

func kinds(ns []models.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Kind)
	}
	return out
}

// Practitioner lifecycle from checkout through cancellation, with the email
// queue left unstarted so enqueued deliveries can be counted.
func TestPractitionerLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	_, client := testutil.NewRedis(t)
	repos := repository.NewRepositories(db)
	queue := jobqueue.NewQueue(client, 1)
	dispatcher := notify.NewDispatcher(queue, repos.Notification)

	billingSvc := billing.NewServiceFromDB(db, dispatcher)
	approvalSvc := approval.NewService(repos.AccessState, dispatcher)
	ctx := context.Background()

	user := testutil.CreatePractitioner(t, db)
	periodEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// Checkout moves a new practitioner into review
	res, err := billingSvc.Apply(ctx, billing.CanonicalEvent{
		ID:              "evt_checkout",
		Type:            billing.EventCheckoutCompleted,
		ProviderType:    "checkout.session.completed",
		SubscriptionRef: "sub_life",
		CustomerRef:     "cus_life",
		AccountID:       user.ID,
		PriceRef:        "price_pro",
		PeriodEnd:       &periodEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, res.Outcome)
	state := testutil.LoadAccessState(t, db, user.ID)
	assert.Equal(t, models.ApprovalPending, state.ApprovalStatus)
	assert.False(t, state.IsEntitled)
	assert.Equal(t, []string{models.NotificationPaymentReceived}, kinds(testutil.Notifications(t, db, user.ID)))

	// Approval grants access
	approved, err := approvalSvc.Approve(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalActive, approved.ApprovalStatus)
	assert.True(t, approved.IsEntitled)
	assert.NotNil(t, approved.ApprovedAt)

	// A failed invoice suspends access but keeps the approval
	failed := billing.CanonicalEvent{
		ID:              "evt_failed",
		Type:            billing.EventInvoiceFailed,
		ProviderType:    "invoice.payment_failed",
		SubscriptionRef: "sub_life",
		PeriodEnd:       &periodEnd,
	}
	res, err = billingSvc.Apply(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, res.Outcome)
	state = testutil.LoadAccessState(t, db, user.ID)
	assert.Equal(t, models.ApprovalActive, state.ApprovalStatus)
	assert.False(t, state.IsEntitled)
	afterFailure := state.Snapshot()

	// Redelivery changes nothing
	res, err = billingSvc.Apply(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeDuplicate, res.Outcome)
	assert.True(t, afterFailure.Equal(testutil.LoadAccessState(t, db, user.ID).Snapshot()))
	assert.Len(t, testutil.Notifications(t, db, user.ID), 3)

	// Cancellation clears billing and leaves the approval alone
	res, err = billingSvc.Apply(ctx, billing.CanonicalEvent{
		ID:              "evt_deleted",
		Type:            billing.EventSubscriptionCanceled,
		ProviderType:    "customer.subscription.deleted",
		SubscriptionRef: "sub_life",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeApplied, res.Outcome)
	state = testutil.LoadAccessState(t, db, user.ID)
	assert.Equal(t, models.ApprovalActive, state.ApprovalStatus)
	assert.Nil(t, state.BillingSubscriptionRef)
	assert.Empty(t, state.BillingCustomerRef)
	assert.False(t, state.IsEntitled)

	assert.Equal(t, []string{
		models.NotificationPaymentReceived,
		models.NotificationApproved,
		models.NotificationPaymentFailed,
		models.NotificationSubscriptionCanceled,
	}, kinds(testutil.Notifications(t, db, user.ID)))

	// Only approval and payment failure send email
	size, err := queue.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	history, err := approvalSvc.History(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestRejectAfterCheckout(t *testing.T) {
	db := testutil.NewDB(t)
	repos := repository.NewRepositories(db)
	billingSvc := billing.NewServiceFromDB(db, nil)
	approvalSvc := approval.NewService(repos.AccessState, nil)
	ctx := context.Background()

	user := testutil.CreatePractitioner(t, db)
	_, err := billingSvc.Apply(ctx, billing.CanonicalEvent{
		ID:              "evt_checkout",
		Type:            billing.EventCheckoutCompleted,
		ProviderType:    "checkout.session.completed",
		SubscriptionRef: "sub_rej",
		CustomerRef:     "cus_rej",
		AccountID:       user.ID,
	})
	require.NoError(t, err)

	state, err := approvalSvc.Reject(ctx, user.ID, "incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, state.ApprovalStatus)
	assert.Equal(t, "incomplete documents", state.RejectionReason)
	assert.NotNil(t, state.RejectedAt)
	assert.False(t, state.IsEntitled)

	// A rejected account is never approved later
	_, err = approvalSvc.Approve(ctx, user.ID)
	assert.Error(t, err)
}
