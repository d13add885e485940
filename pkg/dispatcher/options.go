package dispatcher

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// DefaultLockDuration applies to descriptors that declare no lock duration.
const DefaultLockDuration = 30 * time.Second

// Option configures a Dispatcher.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	codec         core.Codec
	logger        *slog.Logger
	lockDuration  time.Duration
	transient     bool
	meterProvider metric.MeterProvider
}

// WithCodec sets the encode/decode service for object arguments and JSON results.
func WithCodec(c core.Codec) Option {
	return optionFunc(func(cfg *config) {
		cfg.codec = c
	})
}

// WithLogger sets the dispatcher logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(cfg *config) {
		cfg.logger = l
	})
}

// WithLockDuration sets the lock duration for descriptors that declare none.
func WithLockDuration(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.lockDuration = d
	})
}

// WithJSONValueTransient controls whether generic JSON results are marked
// transient. Default: true.
func WithJSONValueTransient(transient bool) Option {
	return optionFunc(func(cfg *config) {
		cfg.transient = transient
	})
}

// WithMeterProvider sets the OpenTelemetry meter provider. Default: the
// global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return optionFunc(func(cfg *config) {
		cfg.meterProvider = mp
	})
}
