package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/jdziat/simple-external-tasks/pkg/client"
	"github.com/jdziat/simple-external-tasks/pkg/config"
	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/storage"
)

// broker is either the REST client or the embedded database broker.
type broker struct {
	core.Broker
	embedded *storage.GormBroker
	db       *gorm.DB
	close    func() error
}

func (b *broker) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openBroker connects to the engine named by cfg.BaseURL, or opens the
// embedded broker on cfg.Database when no URL is configured.
func openBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*broker, error) {
	if cfg.BaseURL != "" {
		c, err := client.New(cfg.BaseURL,
			client.WithWorkerID(cfg.WorkerID),
			client.WithMaxTasks(cfg.MaxTasks),
			client.WithAsyncResponseTimeout(cfg.AsyncResponseTimeout),
			client.WithPollInterval(cfg.PollInterval),
			client.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return &broker{Broker: c, close: c.Close}, nil
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	b := storage.NewGormBroker(db,
		storage.WithWorkerID(cfg.WorkerID),
		storage.WithMaxTasks(cfg.MaxTasks),
		storage.WithPollInterval(cfg.PollInterval),
		storage.WithLogger(logger),
	)
	closeDB := func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	if err := b.Migrate(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("migrate: %w", err), closeDB())
	}
	if cfg.SweepSchedule != "" {
		if err := b.StartSweeper(cfg.SweepSchedule); err != nil {
			return nil, errors.Join(err, closeDB())
		}
	}
	return &broker{
		Broker:   b,
		embedded: b,
		db:       db,
		close: func() error {
			return errors.Join(b.Close(), closeDB())
		},
	}, nil
}
