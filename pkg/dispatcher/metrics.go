package dispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jdziat/simple-external-tasks/dispatcher"

type metrics struct {
	processed metric.Int64Counter
	duration  metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &metrics{}
	// Instrument creation only fails on invalid names; the returned no-op
	// instruments are still safe to use.
	m.processed, _ = meter.Int64Counter("tasks.processed",
		metric.WithDescription("Tasks handled by the dispatcher, by topic and outcome."))
	m.duration, _ = meter.Float64Histogram("tasks.duration",
		metric.WithDescription("Time from delivery to outcome report."),
		metric.WithUnit("ms"))
	return m
}

func (m *metrics) record(ctx context.Context, topic string, kind OutcomeKind, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", kind.String()),
	)
	m.processed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}
