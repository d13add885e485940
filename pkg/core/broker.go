package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// Broker is the external work-queue the dispatcher subscribes to.
type Broker interface {
	// Probe returns nil when the broker is reachable.
	Probe(ctx context.Context) error

	// Subscribe opens a topic subscription. The handler is invoked once per
	// delivered task, possibly concurrently. The subscription stays open
	// until Close is called or ctx is cancelled.
	Subscribe(ctx context.Context, topic string, lockDuration time.Duration, h TaskHandler) (Subscription, error)
}

// TaskHandler receives one locked task together with the service used to
// report its outcome.
type TaskHandler func(ctx context.Context, task *Task, svc TaskService)

// TaskService reports task outcomes back to the broker.
type TaskService interface {
	Complete(ctx context.Context, task *Task, vars OutputVariables) error
	Fail(ctx context.Context, task *Task, failure Failure) error
}

// Failure describes a task failure report.
type Failure struct {
	Message      string
	Details      string
	Retries      int
	RetryTimeout time.Duration
}

// Subscription is an open topic subscription.
type Subscription interface {
	Topic() string
	Close() error
}

// Codec is the encode/decode service used for object payloads.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, target any) error
}
