package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// State is the bootstrap state of a Worker.
type State int32

const (
	Unregistered State = iota
	Probing
	Registered
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Probing:
		return "probing"
	case Registered:
		return "registered"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Registrar opens every declared subscription on a broker.
// *dispatcher.Dispatcher satisfies it.
type Registrar interface {
	Open(ctx context.Context, broker core.Broker) error
}

type emitter interface {
	Emit(core.Event)
}

// Worker probes the broker until it is reachable and then registers the
// subscriptions once.
type Worker struct {
	broker    core.Broker
	registrar Registrar
	config    WorkerConfig
	logger    *slog.Logger

	state   atomic.Int32
	startMu sync.Mutex

	hooksMu       sync.RWMutex
	onUnreachable []func(context.Context, int, error)
	onRegistered  []func(context.Context)
}

// NewWorker creates a worker that registers r on broker.
func NewWorker(broker core.Broker, r Registrar, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		Retry: DefaultRetryConfig(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Worker{
		broker:    broker,
		registrar: r,
		config:    config,
		logger:    config.Logger,
	}
}

// State returns the current bootstrap state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Registered reports whether subscriptions are open.
func (w *Worker) Registered() bool {
	return w.State() == Registered
}

// OnUnreachable registers a callback invoked after every failed probe.
func (w *Worker) OnUnreachable(fn func(ctx context.Context, attempt int, err error)) {
	w.hooksMu.Lock()
	w.onUnreachable = append(w.onUnreachable, fn)
	w.hooksMu.Unlock()
}

// OnRegistered registers a callback invoked once subscriptions are open.
func (w *Worker) OnRegistered(fn func(ctx context.Context)) {
	w.hooksMu.Lock()
	w.onRegistered = append(w.onRegistered, fn)
	w.hooksMu.Unlock()
}

// Start probes the broker and registers the subscriptions. It blocks until
// registration succeeds, the retry policy gives up, or ctx is cancelled.
// Calling Start again after success is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.startMu.Lock()
	defer w.startMu.Unlock()

	if w.Registered() {
		return nil
	}

	w.state.Store(int32(Probing))
	w.logger.Info("probing broker")

	err := retryWithBackoff(ctx, w.config.Retry, func() error {
		return w.register(ctx)
	}, func(attempt int, err error) {
		w.unreachable(ctx, attempt, err)
	})
	if err != nil {
		w.state.Store(int32(Unregistered))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("tasks: bootstrap gave up: %w", err)
	}

	w.state.Store(int32(Registered))
	w.logger.Info("subscriptions registered")
	w.callRegisteredHooks(ctx)
	return nil
}

// StartAsync runs Start in the background. The returned channel receives
// Start's result and is then closed.
func (w *Worker) StartAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- w.Start(ctx)
	}()
	return done
}

func (w *Worker) register(ctx context.Context) error {
	if err := w.broker.Probe(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", core.ErrBrokerUnreachable, err)
	}

	err := w.registrar.Open(ctx, w.broker)
	if errors.Is(err, core.ErrAlreadyRegistered) {
		return nil
	}
	return err
}

func (w *Worker) unreachable(ctx context.Context, attempt int, err error) {
	w.logger.Warn("broker not reachable, retrying",
		"attempt", attempt,
		"interval", w.config.Retry.InitialBackoff,
		"error", err,
	)

	if e, ok := w.registrar.(emitter); ok {
		e.Emit(&core.BrokerUnreachable{Attempt: attempt, Error: err, Timestamp: time.Now()})
	}

	w.hooksMu.RLock()
	hooks := make([]func(context.Context, int, error), len(w.onUnreachable))
	copy(hooks, w.onUnreachable)
	w.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, attempt, err)
	}
}

func (w *Worker) callRegisteredHooks(ctx context.Context) {
	w.hooksMu.RLock()
	hooks := make([]func(context.Context), len(w.onRegistered))
	copy(hooks, w.onRegistered)
	w.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

var _ core.Starter = (*Worker)(nil)
