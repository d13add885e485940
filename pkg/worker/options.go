package worker

import (
	"log/slog"
	"time"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Retry  RetryConfig
	Logger *slog.Logger
}

// WithProbeInterval sets a fixed interval between bootstrap probes.
// Non-positive values are ignored.
func WithProbeInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.Retry = FixedInterval(d)
		}
	})
}

// WithRetry replaces the bootstrap retry policy.
func WithRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Retry = cfg
	})
}

// WithMaxAttempts bounds the number of bootstrap probes. Zero means unbounded.
func WithMaxAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if n < 0 {
			n = 0
		}
		c.Retry.MaxAttempts = n
	})
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if l != nil {
			c.Logger = l
		}
	})
}
