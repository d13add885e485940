package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

type queue struct {
	mu    sync.Mutex
	tasks []*core.Task
	asked []int
}

func (q *queue) fetch(_ context.Context, max int) ([]*core.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.asked = append(q.asked, max)
	n := max
	if n > len(q.tasks) {
		n = len(q.tasks)
	}
	batch := q.tasks[:n]
	q.tasks = q.tasks[n:]
	return batch, nil
}

func tasks(n int) []*core.Task {
	out := make([]*core.Task, n)
	for i := range out {
		out[i] = &core.Task{ID: string(rune('a' + i))}
	}
	return out
}

func TestPoller_DeliversEveryTask(t *testing.T) {
	q := &queue{tasks: tasks(5)}
	var handled atomic.Int32

	p := Start(context.Background(), Config{
		Topic:        "quote.create",
		Fetch:        q.fetch,
		Handler:      func(context.Context, *core.Task, core.TaskService) { handled.Add(1) },
		PollInterval: time.Millisecond,
		MaxInFlight:  2,
	})

	require.Eventually(t, func() bool { return handled.Load() == 5 }, 2*time.Second, time.Millisecond)
	require.NoError(t, p.Close())
	assert.Equal(t, "quote.create", p.Topic())

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, n := range q.asked {
		assert.LessOrEqual(t, n, 2)
	}
}

func TestPoller_BoundsInFlight(t *testing.T) {
	q := &queue{tasks: tasks(8)}
	var running, peak, done atomic.Int32

	p := Start(context.Background(), Config{
		Topic: "t",
		Fetch: q.fetch,
		Handler: func(context.Context, *core.Task, core.TaskService) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			done.Add(1)
		},
		PollInterval: time.Millisecond,
		MaxInFlight:  3,
	})
	defer p.Close()

	require.Eventually(t, func() bool { return done.Load() == 8 }, 2*time.Second, time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPoller_KeepsPollingAfterFetchError(t *testing.T) {
	var calls atomic.Int32
	var handled atomic.Int32

	p := Start(context.Background(), Config{
		Topic: "t",
		Fetch: func(context.Context, int) ([]*core.Task, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("connection reset")
			}
			if calls.Load() == 2 {
				return tasks(1), nil
			}
			return nil, nil
		},
		Handler:      func(context.Context, *core.Task, core.TaskService) { handled.Add(1) },
		PollInterval: time.Millisecond,
	})
	defer p.Close()

	require.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, time.Millisecond)
}

func TestPoller_HandlerOutlivesClose(t *testing.T) {
	q := &queue{tasks: tasks(1)}
	started := make(chan struct{})
	var ctxErr error

	p := Start(context.Background(), Config{
		Topic: "t",
		Fetch: q.fetch,
		Handler: func(ctx context.Context, _ *core.Task, _ core.TaskService) {
			close(started)
			time.Sleep(20 * time.Millisecond)
			ctxErr = ctx.Err()
		},
		PollInterval: time.Millisecond,
	})

	<-started
	require.NoError(t, p.Close())
	assert.NoError(t, ctxErr)
}

func TestPoller_RecoversPanics(t *testing.T) {
	q := &queue{tasks: tasks(2)}
	var handled atomic.Int32

	p := Start(context.Background(), Config{
		Topic: "t",
		Fetch: q.fetch,
		Handler: func(_ context.Context, task *core.Task, _ core.TaskService) {
			handled.Add(1)
			if task.ID == "a" {
				panic("boom")
			}
		},
		PollInterval: time.Millisecond,
		MaxInFlight:  1,
	})
	defer p.Close()

	require.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, time.Millisecond)
}

func TestPoller_CloseRunsOnCloseOnce(t *testing.T) {
	var closed atomic.Int32
	p := Start(context.Background(), Config{
		Topic:   "t",
		Fetch:   func(context.Context, int) ([]*core.Task, error) { return nil, nil },
		Handler: func(context.Context, *core.Task, core.TaskService) {},
		OnClose: func() { closed.Add(1) },
	})

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), closed.Load())
}
