package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManagerRunsPeriodicTasks(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	m := NewManager(q)

	var runs atomic.Int32
	m.AddTask(PeriodicTask{
		Name:     "prune",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	m.AddTask(PeriodicTask{
		Name:     "failing",
		Interval: 10 * time.Millisecond,
		Run:      func(ctx context.Context) error { return errors.New("boom") },
	})

	m.Start()
	assert.True(t, m.IsRunning())
	assert.True(t, q.IsRunning())

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())
	assert.False(t, q.IsRunning())

	// Stop is idempotent
	m.Stop()
}

func TestManagerSkipsTasksWithoutInterval(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	m := NewManager(q)

	m.AddTask(PeriodicTask{Name: "disabled", Run: func(ctx context.Context) error { return nil }})
	m.AddTask(PeriodicTask{Name: "no-run", Interval: time.Minute})

	assert.Empty(t, m.tasks)
	assert.Same(t, q, m.GetQueue())
}

func TestRunTaskOnceBoundsContext(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	m := NewManager(q)

	err := m.RunTaskOnce(context.Background(), PeriodicTask{
		Name:     "slow",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
