package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
	"github.com/nutrixpert/nutrixpert/internal/pkg/metrics"
	"github.com/nutrixpert/nutrixpert/internal/pkg/notify"
)

const lookupTimeout = 5 * time.Second

// Dispatcher receives notifications after their transaction committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// SubscriptionLookup fetches subscription details from the billing provider.
type SubscriptionLookup interface {
	Lookup(ctx context.Context, subscriptionRef string) (*SubscriptionDetails, error)
}

// Option configures a Service.
type Option func(*Service)

// WithSubscriptionLookup enables filling price and period of checkout events
// from the provider API.
func WithSubscriptionLookup(lookup SubscriptionLookup) Option {
	return func(s *Service) { s.lookup = lookup }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service reconciles canonical billing events into access state.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	lookup     SubscriptionLookup
	now        func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		dispatcher: dispatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, dispatcher Dispatcher, opts ...Option) *Service {
	return NewService(NewRepository(db), dispatcher, opts...)
}

// Apply reconciles one event. State change, dedupe record, notifications and
// transition log commit together; notifications are dispatched afterwards
// and a dispatch failure never fails Apply.
func (s *Service) Apply(ctx context.Context, ev CanonicalEvent) (*Result, error) {
	if ev.Type == EventUnhandled {
		return &Result{Outcome: OutcomeUnhandled}, nil
	}

	if ev.Type == EventCheckoutCompleted && (ev.PriceRef == "" || ev.PeriodEnd == nil) {
		s.enrich(ctx, &ev)
	}

	var result *Result
	err := repository.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(tx repository.AccessStateTx) error {
			r, err := s.applyTx(tx, ev)
			result = r
			return err
		})
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindUnknownSubscription {
			log.Warnf("[Billing] Dropping %s event %s: no account holds subscription %s", ev.ProviderType, ev.ID, ev.SubscriptionRef)
		}
		return nil, err
	}

	if result.Outcome == OutcomeApplied {
		metrics.TransitionsTotal.WithLabelValues(models.TransitionSourceBilling, ev.cause()).Inc()
		log.Infof("[Billing] Applied %s event %s to account %d: approval=%s billing=%s entitled=%t",
			ev.ProviderType, ev.ID, result.AccountID, result.After.ApprovalStatus, result.After.BillingStatus, result.After.IsEntitled)
	} else {
		log.Infof("[Billing] %s event %s for account %d: %s", ev.ProviderType, ev.ID, result.AccountID, result.Outcome)
	}

	s.dispatch(ctx, result.Notifications)
	return result, nil
}

func (s *Service) applyTx(tx repository.AccessStateTx, ev CanonicalEvent) (*Result, error) {
	state, err := s.locate(tx, ev)
	if err != nil || state == nil {
		return &Result{Outcome: OutcomeIgnored, AccountID: ev.AccountID}, err
	}

	before := *state
	d := reconcile(state, ev)

	recorded, err := tx.RecordEvent(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		SubscriptionRef: ev.SubscriptionRef,
		ProviderEventID: ev.ID,
		EventType:       ev.ProviderType,
		AccountID:       state.AccountID,
		Outcome:         string(d.outcome),
		ProcessedAt:     s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record billing event %s: %w", ev.ID, err)
	}

	beforeSnap := before.Snapshot()
	result := &Result{AccountID: state.AccountID, Before: &beforeSnap}
	if !recorded {
		result.Outcome = OutcomeDuplicate
		result.After = &beforeSnap
		return result, nil
	}

	result.Outcome = d.outcome
	if d.outcome != OutcomeApplied {
		if d.touched {
			if err := tx.Save(state); err != nil {
				return nil, err
			}
		}
		after := state.Snapshot()
		result.After = &after
		return result, nil
	}

	if err := tx.Save(state); err != nil {
		return nil, err
	}
	if err := tx.RecordTransition(models.NewAccessStateTransition(models.TransitionSourceBilling, ev.cause(), ev.ID, &before, state)); err != nil {
		return nil, fmt.Errorf("record transition: %w", err)
	}
	if d.notification != "" {
		n := notify.Build(state.AccountID, d.notification, "")
		if err := tx.CreateNotification(&n); err != nil {
			return nil, fmt.Errorf("create notification: %w", err)
		}
		result.Notifications = append(result.Notifications, n)
	}

	after := state.Snapshot()
	result.After = &after
	return result, nil
}

// locate loads and locks the state row an event applies to. It returns a nil
// state without error when the event is to be ignored.
func (s *Service) locate(tx repository.AccessStateTx, ev CanonicalEvent) (*models.AccessState, error) {
	const op = "billing.Apply"

	if ev.Type != EventCheckoutCompleted {
		state, err := tx.LockBySubscriptionRef(ev.SubscriptionRef)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.New(apperror.KindUnknownSubscription, op, "subscription "+ev.SubscriptionRef+" is not linked to any account")
		}
		return state, err
	}

	account, err := tx.GetAccount(ev.AccountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Billing] Checkout %s references unknown account %d, ignoring", ev.ID, ev.AccountID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !account.IsPractitioner() {
		log.Warnf("[Billing] Checkout %s for account %d with role %s, ignoring", ev.ID, ev.AccountID, account.Role)
		return nil, nil
	}

	owner, err := tx.LockBySubscriptionRef(ev.SubscriptionRef)
	if err == nil && owner.AccountID != ev.AccountID {
		log.Warnf("[Billing] Subscription %s of checkout %s already belongs to account %d, ignoring", ev.SubscriptionRef, ev.ID, owner.AccountID)
		return nil, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	state, err := tx.LockByAccountID(ev.AccountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.NewAccessState(ev.AccountID)
		if err := tx.Create(state); err != nil {
			return nil, err
		}
		return state, nil
	}
	return state, err
}

// enrich fills price and period of a checkout event from the provider. The
// following INVOICE_PAID carries both as well, so failures only get logged.
func (s *Service) enrich(ctx context.Context, ev *CanonicalEvent) {
	if s.lookup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	details, err := s.lookup.Lookup(ctx, ev.SubscriptionRef)
	if err != nil {
		log.Warnf("[Billing] Subscription lookup for %s failed: %v", ev.SubscriptionRef, err)
		return
	}
	if ev.PriceRef == "" {
		ev.PriceRef = details.PriceRef
	}
	if ev.PeriodEnd == nil {
		ev.PeriodEnd = details.PeriodEnd
	}
	if ev.CustomerRef == "" {
		ev.CustomerRef = details.CustomerRef
	}
}

func (s *Service) dispatch(ctx context.Context, notifications []models.Notification) {
	if s.dispatcher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, n := range notifications {
		if err := s.dispatcher.Dispatch(ctx, n); err != nil {
			log.Warnf("[Billing] Dispatch of notification %d (%s) failed, it stays pending: %v", n.ID, n.Kind, err)
		}
	}
}

// PruneProcessedEvents deletes dedupe records older than olderThan.
func (s *Service) PruneProcessedEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.repo.PruneWebhookEvents(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Billing] Pruned %d processed webhook events", n)
	}
	return n, nil
}
