package dispatcher

import (
	"context"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// OnTaskComplete registers a callback for when a task is reported complete.
func (d *Dispatcher) OnTaskComplete(fn func(context.Context, *core.Task, core.OutputVariables)) {
	d.mu.Lock()
	d.onComplete = append(d.onComplete, fn)
	d.mu.Unlock()
}

// OnTaskFail registers a callback for when a task is reported failed.
func (d *Dispatcher) OnTaskFail(fn func(context.Context, *core.Task, error)) {
	d.mu.Lock()
	d.onFail = append(d.onFail, fn)
	d.mu.Unlock()
}

// OnTaskSkip registers a callback for when a task is skipped by its qualifier.
func (d *Dispatcher) OnTaskSkip(fn func(context.Context, *core.Task)) {
	d.mu.Lock()
	d.onSkip = append(d.onSkip, fn)
	d.mu.Unlock()
}

// Events returns a channel for receiving dispatcher events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (d *Dispatcher) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	d.mu.Lock()
	d.eventSubs = append(d.eventSubs, ch)
	d.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (d *Dispatcher) Unsubscribe(ch <-chan core.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, sub := range d.eventSubs {
		if sub == ch {
			d.eventSubs = append(d.eventSubs[:i], d.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers. Slow subscribers miss events
// rather than block dispatch.
func (d *Dispatcher) Emit(e core.Event) {
	d.mu.RLock()
	subs := make([]chan core.Event, len(d.eventSubs))
	copy(subs, d.eventSubs)
	d.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (d *Dispatcher) callCompleteHooks(ctx context.Context, task *core.Task, vars core.OutputVariables) {
	d.mu.RLock()
	hooks := make([]func(context.Context, *core.Task, core.OutputVariables), len(d.onComplete))
	copy(hooks, d.onComplete)
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, task, vars)
	}
}

func (d *Dispatcher) callFailHooks(ctx context.Context, task *core.Task, err error) {
	d.mu.RLock()
	hooks := make([]func(context.Context, *core.Task, error), len(d.onFail))
	copy(hooks, d.onFail)
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, task, err)
	}
}

func (d *Dispatcher) callSkipHooks(ctx context.Context, task *core.Task) {
	d.mu.RLock()
	hooks := make([]func(context.Context, *core.Task), len(d.onSkip))
	copy(hooks, d.onSkip)
	d.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, task)
	}
}
