package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// EventSource publishes dispatcher events. *dispatcher.Dispatcher satisfies it.
type EventSource interface {
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// DepthSource reports how many tasks wait or are locked, per topic.
// *storage.GormBroker satisfies it.
type DepthSource interface {
	QueueDepth(ctx context.Context) (map[string][2]int64, error)
}

// Collector counts dispatcher outcomes and periodically snapshots queue depth.
type Collector struct {
	events    EventSource
	depth     DepthSource
	stats     Storage
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	counters map[string]*Counters

	// ready is closed once the collector has subscribed to events.
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures the Collector.
type Option interface {
	apply(*Collector)
}

type optionFunc func(*Collector)

func (f optionFunc) apply(c *Collector) { f(c) }

// WithRetention sets how long stats rows are kept. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return optionFunc(func(c *Collector) {
		c.retention = d
	})
}

// WithInterval sets the flush and snapshot interval. Default: one minute.
func WithInterval(d time.Duration) Option {
	return optionFunc(func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	})
}

// WithDepthSource enables queue depth snapshots.
func WithDepthSource(d DepthSource) Option {
	return optionFunc(func(c *Collector) {
		c.depth = d
	})
}

// WithLogger sets the collector logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	})
}

// NewCollector creates a Collector reading events from src.
func NewCollector(src EventSource, stats Storage, opts ...Option) *Collector {
	c := &Collector{
		events:    src,
		stats:     stats,
		retention: 7 * 24 * time.Hour,
		interval:  time.Minute,
		logger:    slog.Default(),
		counters:  make(map[string]*Counters),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// WaitReady blocks until the collector has subscribed to events.
func (c *Collector) WaitReady() {
	<-c.ready
}

// Start runs the event listener and the periodic flush. Blocks until ctx
// is cancelled, then flushes what is left.
func (c *Collector) Start(ctx context.Context) {
	events := c.events.Events()
	defer c.events.Unsubscribe(events)

	c.readyOnce.Do(func() { close(c.ready) })

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(events)
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.Flush(flushCtx)
			cancel()
			return
		case e := <-events:
			c.handleEvent(e)
		case <-ticker.C:
			c.Flush(ctx)
			c.snapshot(ctx)
			c.prune(ctx)
		}
	}
}

// drain counts events already buffered for the collector.
func (c *Collector) drain(events <-chan core.Event) {
	for {
		select {
		case e := <-events:
			c.handleEvent(e)
		default:
			return
		}
	}
}

func (c *Collector) handleEvent(e core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := e.(type) {
	case *core.TaskCompleted:
		c.get(ev.Task.Topic).Completed++
	case *core.TaskFailed:
		c.get(ev.Task.Topic).Failed++
	case *core.TaskSkipped:
		c.get(ev.Task.Topic).Skipped++
	}
}

func (c *Collector) get(topic string) *Counters {
	n, ok := c.counters[topic]
	if !ok {
		n = &Counters{}
		c.counters[topic] = n
	}
	return n
}

// Flush writes accumulated counters to the stats storage.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.counters
	c.counters = make(map[string]*Counters)
	c.mu.Unlock()

	ts := time.Now()
	for topic, n := range batch {
		if n.zero() {
			continue
		}
		if err := c.stats.AddCounters(ctx, topic, ts, *n); err != nil {
			c.logger.Warn("failed to write task stats", "topic", topic, "error", err)
		}
	}
}

func (c *Collector) snapshot(ctx context.Context) {
	if c.depth == nil {
		return
	}
	depth, err := c.depth.QueueDepth(ctx)
	if err != nil {
		c.logger.Warn("failed to read queue depth", "error", err)
		return
	}
	ts := time.Now()
	for topic, d := range depth {
		if err := c.stats.SnapshotDepth(ctx, topic, ts, d[0], d[1]); err != nil {
			c.logger.Warn("failed to write queue depth", "topic", topic, "error", err)
		}
	}
}

func (c *Collector) prune(ctx context.Context) {
	if c.retention > 0 {
		if _, err := c.stats.Prune(ctx, time.Now().Add(-c.retention)); err != nil {
			c.logger.Warn("failed to prune topic stats", "error", err)
		}
	}
}
