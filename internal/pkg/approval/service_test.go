package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
	"github.com/nutrixpert/nutrixpert/internal/pkg/testutil"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingDispatcher) {
	t.Helper()
	db := testutil.NewDB(t)
	d := &recordingDispatcher{}
	return NewService(repository.NewAccessStateRepository(db), d), db, d
}

func seed(t *testing.T, db *gorm.DB, approval models.ApprovalStatus, billing string) *models.AccessState {
	t.Helper()
	user := testutil.CreatePractitioner(t, db)
	return testutil.SeedAccessState(t, db, &models.AccessState{
		AccountID:      user.ID,
		ApprovalStatus: approval,
		BillingStatus:  billing,
	})
}

func TestApprove(t *testing.T) {
	svc, db, d := newTestService(t)
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	seeded := seed(t, db, models.ApprovalPending, models.BillingStatusActive)

	state, err := svc.Approve(context.Background(), seeded.AccountID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalActive, state.ApprovalStatus)
	assert.True(t, state.IsEntitled)
	require.NotNil(t, state.ApprovedAt)
	assert.True(t, fixed.Equal(*state.ApprovedAt))

	stored := testutil.LoadAccessState(t, db, seeded.AccountID)
	assert.True(t, stored.IsEntitled)
	assert.Equal(t, uint(1), stored.Version)

	notifications := testutil.Notifications(t, db, seeded.AccountID)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationApproved, notifications[0].Kind)
	assert.Equal(t, "Cadastro Aprovado!", notifications[0].Title)
	assert.True(t, notifications[0].SendEmail)
	require.Len(t, d.sent, 1)
	assert.Equal(t, notifications[0].ID, d.sent[0].ID)
}

func TestApproveWithUnhealthyBillingIsNotEntitled(t *testing.T) {
	svc, db, _ := newTestService(t)
	seeded := seed(t, db, models.ApprovalPending, models.BillingStatusPastDue)

	state, err := svc.Approve(context.Background(), seeded.AccountID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalActive, state.ApprovalStatus)
	assert.False(t, state.IsEntitled)
}

func TestReject(t *testing.T) {
	tests := []struct {
		name       string
		reason     string
		wantReason string
		wantMsg    string
	}{
		{"with reason", "incomplete documents", "incomplete documents", "Seu cadastro não foi aprovado. Motivo: incomplete documents"},
		{"blank reason", "   ", "Não especificado", "Seu cadastro não foi aprovado. Entre em contato com o suporte para mais informações."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, d := newTestService(t)
			seeded := seed(t, db, models.ApprovalPending, models.BillingStatusActive)

			state, err := svc.Reject(context.Background(), seeded.AccountID, tt.reason)
			require.NoError(t, err)
			assert.Equal(t, models.ApprovalRejected, state.ApprovalStatus)
			assert.Equal(t, tt.wantReason, state.RejectionReason)
			assert.NotNil(t, state.RejectedAt)
			assert.False(t, state.IsEntitled)

			notifications := testutil.Notifications(t, db, seeded.AccountID)
			require.Len(t, notifications, 1)
			assert.Equal(t, models.NotificationRejected, notifications[0].Kind)
			assert.Equal(t, tt.wantMsg, notifications[0].Message)
			assert.Len(t, d.sent, 1)
		})
	}
}

func TestRevoke(t *testing.T) {
	svc, db, _ := newTestService(t)
	seeded := seed(t, db, models.ApprovalActive, models.BillingStatusActive)
	require.True(t, seeded.IsEntitled)

	state, err := svc.Revoke(context.Background(), seeded.AccountID, "documentação vencida")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalCancelled, state.ApprovalStatus)
	assert.False(t, state.IsEntitled)
	assert.NotNil(t, state.CancelledAt)

	notifications := testutil.Notifications(t, db, seeded.AccountID)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationAccessRevoked, notifications[0].Kind)
	assert.Contains(t, notifications[0].Message, "documentação vencida")
}

// Approve and Reject on anything but PENDING fail and change nothing.
func TestGuardInvariant(t *testing.T) {
	ops := map[string]func(s *Service, id uint) error{
		"approve": func(s *Service, id uint) error { _, err := s.Approve(context.Background(), id); return err },
		"reject":  func(s *Service, id uint) error { _, err := s.Reject(context.Background(), id, "x"); return err },
	}
	statuses := []models.ApprovalStatus{models.ApprovalNone, models.ApprovalActive, models.ApprovalRejected, models.ApprovalCancelled}

	for name, op := range ops {
		for _, status := range statuses {
			t.Run(name+"/"+string(status), func(t *testing.T) {
				svc, db, d := newTestService(t)
				seeded := seed(t, db, status, models.BillingStatusActive)
				before := testutil.LoadAccessState(t, db, seeded.AccountID).Snapshot()

				err := op(svc, seeded.AccountID)
				require.Error(t, err)
				assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

				after := testutil.LoadAccessState(t, db, seeded.AccountID).Snapshot()
				assert.True(t, before.Equal(after), "state changed: %+v -> %+v", before, after)
				assert.Empty(t, testutil.Notifications(t, db, seeded.AccountID))
				assert.Empty(t, d.sent)
			})
		}
	}
}

func TestRevokeRequiresActive(t *testing.T) {
	svc, db, _ := newTestService(t)
	seeded := seed(t, db, models.ApprovalPending, models.BillingStatusActive)

	_, err := svc.Revoke(context.Background(), seeded.AccountID, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestMissingAccessStateIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Approve(context.Background(), 4242)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestListPendingAndHistory(t *testing.T) {
	svc, db, _ := newTestService(t)
	first := seed(t, db, models.ApprovalPending, models.BillingStatusActive)
	seed(t, db, models.ApprovalActive, models.BillingStatusActive)
	second := seed(t, db, models.ApprovalPending, models.BillingStatusActive)
	ctx := context.Background()

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second.AccountID, pending[0].AccountID)
	assert.Equal(t, first.AccountID, pending[1].AccountID)
	assert.NotEmpty(t, pending[0].Account.Email)

	_, err = svc.Approve(ctx, first.AccountID)
	require.NoError(t, err)

	history, err := svc.History(ctx, first.AccountID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TransitionSourceAdmin, history[0].Source)
	assert.Equal(t, "approved", history[0].Cause)
	assert.Equal(t, models.ApprovalPending, history[0].Before.Data().ApprovalStatus)
	assert.Equal(t, models.ApprovalActive, history[0].After.Data().ApprovalStatus)
}
