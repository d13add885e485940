package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/dispatcher"
	"github.com/jdziat/simple-external-tasks/pkg/stats"
	"github.com/jdziat/simple-external-tasks/pkg/worker"
)

var runMaxAttempts int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register the configured subscriptions and process tasks until interrupted",
	Long: `Run probes the broker every probe interval until it answers, opens one
subscription per configured topic, and then processes delivered tasks until
SIGINT or SIGTERM.

Subscriptions name one of the builtin handlers: ` + fmt.Sprint(builtinNames()) + `.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, slog.Default())
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Give up after N failed probes (0 = retry forever)")
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Subscriptions) == 0 {
		return errors.New("no subscriptions configured")
	}

	reg, err := bindSubscriptions(cfg.Subscriptions, logger)
	if err != nil {
		return err
	}

	d, err := dispatcher.New(reg.Descriptors(),
		dispatcher.WithLockDuration(cfg.LockDuration),
		dispatcher.WithJSONValueTransient(cfg.JSONValueTransient),
		dispatcher.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	events := d.Events()
	defer d.Unsubscribe(events)
	go logEvents(ctx, events, logger)

	b, err := openBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("close broker", "error", err)
		}
	}()

	if b.embedded != nil {
		collector, err := startCollector(ctx, b, d, logger)
		if err != nil {
			return err
		}
		defer collector.stop()
	}

	w := worker.NewWorker(b, d,
		worker.WithProbeInterval(cfg.ProbeInterval),
		worker.WithMaxAttempts(runMaxAttempts),
		worker.WithLogger(logger),
	)
	w.OnRegistered(func(context.Context) {
		logger.Info("worker registered", "worker_id", cfg.WorkerID, "subscriptions", reg.Len())
	})

	if err := <-w.StartAsync(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return d.Close()
}

type runningCollector struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop flushes the collector and waits for it to exit.
func (c runningCollector) stop() {
	c.cancel()
	<-c.done
}

// startCollector records outcome counts and queue depth next to the
// embedded broker's tasks.
func startCollector(ctx context.Context, b *broker, d *dispatcher.Dispatcher, logger *slog.Logger) (runningCollector, error) {
	store := stats.NewGormStorage(b.db)
	if err := store.Migrate(ctx); err != nil {
		return runningCollector{}, fmt.Errorf("migrate stats: %w", err)
	}
	c := stats.NewCollector(d, store,
		stats.WithDepthSource(b.embedded),
		stats.WithLogger(logger),
	)
	cctx, cancel := context.WithCancel(ctx)
	rc := runningCollector{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(rc.done)
		c.Start(cctx)
	}()
	c.WaitReady()
	return rc, nil
}

func logEvents(ctx context.Context, events <-chan core.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			switch ev := e.(type) {
			case *core.TaskCompleted:
				logger.Debug("task completed", "topic", ev.Task.Topic, "task_id", ev.Task.ID, "duration", ev.Duration)
			case *core.TaskFailed:
				logger.Debug("task failed", "topic", ev.Task.Topic, "task_id", ev.Task.ID, "error", ev.Error)
			case *core.TaskSkipped:
				logger.Debug("task skipped", "topic", ev.Task.Topic, "task_id", ev.Task.ID, "qualifier", ev.Qualifier)
			case *core.BrokerUnreachable:
				logger.Warn("broker unreachable", "attempt", ev.Attempt, "error", ev.Error)
			}
		}
	}
}
