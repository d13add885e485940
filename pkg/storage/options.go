package storage

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/security"
)

// Option configures a GormBroker.
type Option interface {
	apply(*GormBroker)
}

type optionFunc func(*GormBroker)

func (f optionFunc) apply(b *GormBroker) { f(b) }

// WithWorkerID sets the worker id used by subscriptions. Default: a random UUID.
func WithWorkerID(id string) Option {
	return optionFunc(func(b *GormBroker) {
		if id != "" {
			b.workerID = id
		}
	})
}

// WithPollInterval sets how often subscriptions query for new tasks.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(b *GormBroker) {
		if d > 0 {
			b.pollInterval = d
		}
	})
}

// WithMaxTasks bounds the tasks one subscription runs at once.
// Values are clamped to [1, MaxConcurrency].
func WithMaxTasks(n int) Option {
	return optionFunc(func(b *GormBroker) {
		b.maxTasks = security.ClampConcurrency(n)
	})
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(b *GormBroker) {
		if l != nil {
			b.logger = l
		}
	})
}

// PublishOption sets optional fields on a published task.
type PublishOption interface {
	applyPublish(*ExternalTask)
}

type publishOptionFunc func(*ExternalTask)

func (f publishOptionFunc) applyPublish(t *ExternalTask) { f(t) }

// BusinessKey sets the business key of a published task.
func BusinessKey(key string) PublishOption {
	return publishOptionFunc(func(t *ExternalTask) {
		t.BusinessKey = key
	})
}

// Priority sets the task priority (higher = locked first).
func Priority(p int64) PublishOption {
	return publishOptionFunc(func(t *ExternalTask) {
		t.Priority = p
	})
}

// ProcessInstance records the owning process instance and activity.
func ProcessInstance(instanceID, activityID string) PublishOption {
	return publishOptionFunc(func(t *ExternalTask) {
		t.ProcessInstanceID = instanceID
		t.ActivityID = activityID
	})
}

// Retries sets the initial retry count reported to handlers.
func Retries(n int) PublishOption {
	return publishOptionFunc(func(t *ExternalTask) {
		t.Retries = &n
	})
}
