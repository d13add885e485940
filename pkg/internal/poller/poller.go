// Package poller runs the fetch-and-dispatch loop shared by broker implementations.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// FetchFunc locks up to max tasks for one topic.
type FetchFunc func(ctx context.Context, max int) ([]*core.Task, error)

// Config describes one polling loop.
type Config struct {
	Topic        string
	Fetch        FetchFunc
	Handler      core.TaskHandler
	Service      core.TaskService
	PollInterval time.Duration
	MaxInFlight  int
	Logger       *slog.Logger
	// OnClose runs once after the loop and all in-flight tasks have finished.
	OnClose func()
}

// Poller is a running loop. It implements core.Subscription.
type Poller struct {
	cfg     Config
	limiter *rate.Limiter
	slots   chan struct{}
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ core.Subscription = (*Poller)(nil)

// Start launches the loop. It stops when Close is called or ctx is
// cancelled; tasks already handed out run to completion.
func Start(ctx context.Context, cfg Config) *Poller {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		slots:   make(chan struct{}, cfg.MaxInFlight),
		logger:  cfg.Logger.With("topic", cfg.Topic),
		ctx:     pctx,
		cancel:  cancel,
	}

	p.wg.Add(1)
	go p.loop()
	return p
}

// Topic returns the polled topic.
func (p *Poller) Topic() string { return p.cfg.Topic }

// Close stops polling and waits for in-flight tasks.
func (p *Poller) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		if p.cfg.OnClose != nil {
			p.cfg.OnClose()
		}
	})
	return nil
}

func (p *Poller) loop() {
	defer p.wg.Done()

	for {
		if err := p.limiter.Wait(p.ctx); err != nil {
			return
		}

		acquired := p.acquire()
		if acquired == 0 {
			return
		}

		tasks, err := p.cfg.Fetch(p.ctx, acquired)
		if err != nil {
			p.release(acquired)
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn("fetch and lock failed", "error", err)
			continue
		}

		for _, task := range tasks {
			p.wg.Add(1)
			go p.run(task)
		}
		p.release(acquired - len(tasks))
	}
}

// acquire blocks for one free slot and then takes every other free slot
// without blocking. It returns 0 once the loop is stopping.
func (p *Poller) acquire() int {
	select {
	case p.slots <- struct{}{}:
	case <-p.ctx.Done():
		return 0
	}
	n := 1
	for n < cap(p.slots) {
		select {
		case p.slots <- struct{}{}:
			n++
		default:
			return n
		}
	}
	return n
}

func (p *Poller) release(n int) {
	for i := 0; i < n; i++ {
		<-p.slots
	}
}

func (p *Poller) run(task *core.Task) {
	defer p.wg.Done()
	defer p.release(1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task handler panicked", "task_id", task.ID, "error", fmt.Errorf("panic: %v", r))
		}
	}()

	// Reporting must outlive Close so locked tasks are not abandoned.
	p.cfg.Handler(context.WithoutCancel(p.ctx), task, p.cfg.Service)
}
