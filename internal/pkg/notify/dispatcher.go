package notify

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/apperror"
	"github.com/nutrixpert/nutrixpert/internal/pkg/jobqueue"
	"github.com/nutrixpert/nutrixpert/internal/pkg/metrics"
)

const (
	enqueueTimeout    = 2 * time.Second
	redispatchBatch   = 100
	deliveryKeyPrefix = "notification:"
)

// Enqueuer is the part of the job queue the dispatcher needs.
type Enqueuer interface {
	EnqueueUnique(ctx context.Context, key string, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, bool, error)
}

// Dispatcher hands committed notifications to the email queue. In-app
// notifications are already persisted with the transition that caused them.
type Dispatcher struct {
	queue         Enqueuer
	notifications repository.NotificationRepository
}

func NewDispatcher(queue Enqueuer, notifications repository.NotificationRepository) *Dispatcher {
	return &Dispatcher{queue: queue, notifications: notifications}
}

// Dispatch enqueues the email of n, if it has one. It must only be called
// after the transaction that created n committed. Errors are transient: the
// notification stays pending and RedispatchPending picks it up later.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	_, err := d.dispatch(ctx, n)
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, n models.Notification) (bool, error) {
	if !n.NeedsDelivery() || n.ID == 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	payload := jobqueue.NotificationEmailJobPayload{
		NotificationID: n.ID,
		AccountID:      n.AccountID,
		Kind:           n.Kind,
		DeliveryKey:    n.DeliveryKey,
	}
	_, created, err := d.queue.EnqueueUnique(ctx, deliveryKeyPrefix+n.DeliveryKey, jobqueue.JobTypeNotificationEmail, payload.ToMap())
	if err != nil {
		metrics.DispatchFailuresTotal.Inc()
		return false, apperror.Wrap(apperror.KindTransientDependencyFailure, "notify.Dispatch", err)
	}
	if !created {
		log.Debugf("[Notify] Email for notification %d already queued", n.ID)
	}
	return created, nil
}

// RedispatchPending re-enqueues emails that are still pending after
// olderThan, e.g. because Redis was down when they were dispatched.
func (d *Dispatcher) RedispatchPending(ctx context.Context, olderThan time.Duration) (int, error) {
	pending, err := d.notifications.ListPendingDeliveries(ctx, time.Now().Add(-olderThan), redispatchBatch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, n := range pending {
		created, err := d.dispatch(ctx, n)
		if err != nil {
			return enqueued, err
		}
		if created {
			enqueued++
		}
	}
	if enqueued > 0 {
		log.Infof("[Notify] Re-enqueued %d pending notification emails", enqueued)
	}
	return enqueued, nil
}
