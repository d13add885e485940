package storage

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule releases expired locks every 30 seconds.
const DefaultSweepSchedule = "@every 30s"

// StartSweeper schedules ReleaseExpiredLocks on a cron spec, e.g.
// "@every 10s" or "*/1 * * * *". An empty spec uses DefaultSweepSchedule.
// Starting twice replaces the previous schedule.
func (b *GormBroker) StartSweeper(spec string) error {
	if spec == "" {
		spec = DefaultSweepSchedule
	}

	c := cron.New()
	_, err := c.AddFunc(spec, b.sweep)
	if err != nil {
		return fmt.Errorf("tasks: sweeper schedule %q: %w", spec, err)
	}

	b.mu.Lock()
	prev := b.sweeper
	b.sweeper = c
	b.mu.Unlock()

	if prev != nil {
		<-prev.Stop().Done()
	}
	c.Start()
	return nil
}

// StopSweeper stops the sweeper and waits for a running sweep to finish.
func (b *GormBroker) StopSweeper() {
	b.mu.Lock()
	c := b.sweeper
	b.sweeper = nil
	b.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (b *GormBroker) sweep() {
	n, err := b.ReleaseExpiredLocks(context.Background())
	if err != nil {
		b.logger.Error("failed to release expired locks", "error", err)
		return
	}
	if n > 0 {
		b.logger.Info("released expired task locks", "count", n)
	}
}
