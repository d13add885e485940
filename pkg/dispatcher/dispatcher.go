package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/codec"
	"github.com/jdziat/simple-external-tasks/pkg/convert"
	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/encode"
	intctx "github.com/jdziat/simple-external-tasks/pkg/internal/context"
	"github.com/jdziat/simple-external-tasks/pkg/qualifier"
	"github.com/jdziat/simple-external-tasks/pkg/security"
)

// OutcomeKind classifies what happened to one delivered task.
type OutcomeKind int

const (
	// Skipped means the qualifier did not match; the task was left untouched.
	Skipped OutcomeKind = iota
	// Completed means the task was reported complete.
	Completed
	// Failed means the task was reported as permanently failed.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Skipped:
		return "skipped"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the result of running the pipeline for one task.
type Outcome struct {
	Kind      OutcomeKind
	Variables core.OutputVariables
	// Err is the pipeline error for Failed outcomes. For Completed outcomes
	// it holds a broker error raised while reporting completion, if any.
	Err error
}

// Subscription pairs a descriptor with its parsed qualifier.
type Subscription struct {
	Descriptor core.SubscriptionDescriptor
	Predicate  *qualifier.Predicate
}

// Dispatcher owns the declared subscriptions and routes delivered tasks
// through qualifier, conversion, invocation, and result encoding.
type Dispatcher struct {
	subs      []*Subscription
	converter *convert.Converter
	encoder   *encode.Encoder
	logger    *slog.Logger
	metrics   *metrics

	openMu  sync.Mutex
	handles []core.Subscription
	opened  bool

	mu sync.RWMutex

	// Hooks
	onComplete []func(context.Context, *core.Task, core.OutputVariables)
	onFail     []func(context.Context, *core.Task, error)
	onSkip     []func(context.Context, *core.Task)

	// Event stream
	eventSubs []chan core.Event
}

// New validates the descriptors and parses their qualifiers. Qualifier
// parse failures are logged and degrade to always-match.
func New(descriptors []core.SubscriptionDescriptor, opts ...Option) (*Dispatcher, error) {
	cfg := &config{
		lockDuration: DefaultLockDuration,
		transient:    true,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.codec == nil {
		cfg.codec = codec.NewJSON()
	}

	d := &Dispatcher{
		converter: convert.New(cfg.codec, cfg.logger),
		encoder: encode.New(
			encode.WithCodec(cfg.codec),
			encode.WithTransient(cfg.transient),
			encode.WithLogger(cfg.logger),
		),
		logger:  cfg.logger,
		metrics: newMetrics(cfg.meterProvider),
	}

	seen := make(map[string]bool, len(descriptors))
	for i := range descriptors {
		desc := descriptors[i]
		if err := validate(desc); err != nil {
			return nil, fmt.Errorf("tasks: subscription %d (%q): %w", i, desc.Topic, err)
		}
		if seen[desc.Topic] {
			return nil, fmt.Errorf("%w: %q", core.ErrDuplicateSubscription, desc.Topic)
		}
		seen[desc.Topic] = true

		if desc.LockDuration <= 0 {
			desc.LockDuration = cfg.lockDuration
		}
		desc.LockDuration = security.ClampLockDuration(desc.LockDuration)
		desc.Arguments = append([]core.ArgumentSpec(nil), desc.Arguments...)

		d.subs = append(d.subs, &Subscription{
			Descriptor: desc,
			Predicate:  qualifier.MustParse(desc.Qualifier, cfg.logger.With("topic", desc.Topic)),
		})
	}
	return d, nil
}

func validate(desc core.SubscriptionDescriptor) error {
	if err := security.ValidateTopicName(desc.Topic); err != nil {
		return err
	}
	if err := security.ValidateVariableName(desc.ResultVariable); err != nil {
		return fmt.Errorf("result variable: %w", err)
	}
	for _, arg := range desc.Arguments {
		if err := security.ValidateVariableName(arg.Name); err != nil {
			return fmt.Errorf("argument %q: %w", arg.Name, err)
		}
	}
	if desc.Handler == nil {
		return core.ErrMissingHandler
	}
	return nil
}

// Subscriptions returns the compiled subscriptions in registration order.
func (d *Dispatcher) Subscriptions() []*Subscription {
	return append([]*Subscription(nil), d.subs...)
}

// Open registers one broker subscription per descriptor, in declaration
// order. It succeeds at most once; on error every subscription opened by
// this call is closed again so a later Open can start clean.
func (d *Dispatcher) Open(ctx context.Context, broker core.Broker) error {
	d.openMu.Lock()
	defer d.openMu.Unlock()

	if d.opened {
		return core.ErrAlreadyRegistered
	}

	handles := make([]core.Subscription, 0, len(d.subs))
	for _, s := range d.subs {
		desc := s.Descriptor
		h, err := broker.Subscribe(ctx, desc.Topic, desc.LockDuration, d.Handler(s))
		if err != nil {
			for _, opened := range handles {
				_ = opened.Close()
			}
			return fmt.Errorf("tasks: subscribe %q: %w", desc.Topic, err)
		}
		handles = append(handles, h)
		d.logger.Info("subscription opened", "topic", desc.Topic, "lock_duration", desc.LockDuration, "qualifier", s.Predicate.String())
		d.Emit(&core.SubscriptionOpened{Topic: desc.Topic, LockDuration: desc.LockDuration, Timestamp: time.Now()})
	}

	d.handles = handles
	d.opened = true
	return nil
}

// Opened reports whether Open has succeeded.
func (d *Dispatcher) Opened() bool {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	return d.opened
}

// Close closes every open subscription.
func (d *Dispatcher) Close() error {
	d.openMu.Lock()
	handles := d.handles
	d.handles = nil
	d.openMu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", h.Topic(), err))
		}
	}
	return errors.Join(errs...)
}

// Handler returns the broker callback for s. Each invocation is
// independent and safe to run concurrently with any other.
func (d *Dispatcher) Handler(s *Subscription) core.TaskHandler {
	return func(ctx context.Context, task *core.Task, svc core.TaskService) {
		d.Dispatch(ctx, s, task, svc)
	}
}

// Dispatch runs the pipeline for one task and reports the outcome to svc.
// A qualifier miss reports nothing; the broker redelivers once the lock expires.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Subscription, task *core.Task, svc core.TaskService) Outcome {
	start := time.Now()
	topic := s.Descriptor.Topic
	logger := d.logger.With("topic", topic, "task_id", task.ID)

	out := d.Process(ctx, s, task)

	switch out.Kind {
	case Skipped:
		logger.Debug("task ignored because qualifier does not match", "qualifier", s.Predicate.String())
		d.callSkipHooks(ctx, task)
		d.Emit(&core.TaskSkipped{Task: task, Qualifier: s.Predicate.String(), Timestamp: time.Now()})

	case Completed:
		if err := svc.Complete(ctx, task, out.Variables); err != nil {
			logger.Error("failed to report task completion", "error", err)
			out.Err = err
			break
		}
		d.callCompleteHooks(ctx, task, out.Variables)
		d.Emit(&core.TaskCompleted{Task: task, Variables: out.Variables, Duration: time.Since(start), Timestamp: time.Now()})

	case Failed:
		logger.Error("task triggered by subscription failed", "error", out.Err)
		failure := core.Failure{
			Message: security.SanitizeErrorMessage(fmt.Sprintf("Task triggered by subscription to topic %s failed", topic)),
			Details: security.SanitizeErrorDetails(out.Err.Error()),
		}
		if err := svc.Fail(ctx, task, failure); err != nil {
			logger.Error("failed to report task failure", "error", err)
		}
		d.callFailHooks(ctx, task, out.Err)
		d.Emit(&core.TaskFailed{Task: task, Error: out.Err, Timestamp: time.Now()})
	}

	d.metrics.record(ctx, topic, out.Kind, time.Since(start))
	return out
}

// Process runs qualifier, conversion, invocation, projection and encoding
// without talking to the broker.
func (d *Dispatcher) Process(ctx context.Context, s *Subscription, task *core.Task) Outcome {
	desc := &s.Descriptor

	matched, err := s.Predicate.Evaluate(task.Variables)
	if err != nil {
		d.logger.Warn("error evaluating qualifier, dispatching task", "topic", desc.Topic, "task_id", task.ID, "error", err)
	}
	if !matched {
		return Outcome{Kind: Skipped}
	}

	args, err := d.converter.ConvertAll(desc.Arguments, task.Variables)
	if err != nil {
		return Outcome{Kind: Failed, Err: err}
	}

	result, err := d.invoke(ctx, desc, task, args)
	if err != nil {
		return Outcome{Kind: Failed, Err: err}
	}

	vars, err := d.encoder.ProjectAndEncode(result, desc.ReturnValueProperty, desc.ResultVariable)
	if err != nil {
		return Outcome{Kind: Failed, Err: err}
	}
	return Outcome{Kind: Completed, Variables: vars}
}

func (d *Dispatcher) invoke(ctx context.Context, desc *core.SubscriptionDescriptor, task *core.Task, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.InvocationError{Topic: desc.Topic, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	handlerCtx := intctx.WithTaskContext(ctx, &intctx.TaskContext{Task: task, Descriptor: desc})
	result, err = desc.Handler(handlerCtx, args)
	if err != nil {
		var invErr *core.InvocationError
		if !errors.As(err, &invErr) {
			err = &core.InvocationError{Topic: desc.Topic, Err: err}
		}
		return nil, err
	}
	return result, nil
}
