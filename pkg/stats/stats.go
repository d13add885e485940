// Package stats records per-topic task counts bucketed by minute.
package stats

import (
	"context"
	"time"
)

// TopicStat stores per-topic statistics bucketed by minute.
type TopicStat struct {
	ID        uint      `gorm:"primaryKey"`
	Topic     string    `gorm:"index:idx_topic_stats_topic_ts;size:255;not null"`
	Timestamp time.Time `gorm:"index:idx_topic_stats_topic_ts;not null"`
	Pending   int64     `gorm:"default:0"`
	Locked    int64     `gorm:"default:0"`
	Completed int64     `gorm:"default:0"`
	Failed    int64     `gorm:"default:0"`
	Skipped   int64     `gorm:"default:0"`
}

// Counters are the outcome counts added to one bucket.
type Counters struct {
	Completed int64
	Failed    int64
	Skipped   int64
}

func (c Counters) zero() bool {
	return c.Completed == 0 && c.Failed == 0 && c.Skipped == 0
}

// Storage is the interface for stats persistence.
type Storage interface {
	Migrate(ctx context.Context) error
	AddCounters(ctx context.Context, topic string, ts time.Time, c Counters) error
	SnapshotDepth(ctx context.Context, topic string, ts time.Time, pending, locked int64) error
	History(ctx context.Context, topic string, since, until time.Time) ([]TopicStat, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
