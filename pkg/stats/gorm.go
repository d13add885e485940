package stats

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// gormStorage implements Storage using GORM.
type gormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a GORM-backed stats storage.
func NewGormStorage(db *gorm.DB) Storage {
	return &gormStorage{db: db}
}

func (s *gormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&TopicStat{})
}

// bucket returns the row for topic at ts, creating it when absent.
func (s *gormStorage) bucket(ctx context.Context, topic string, ts time.Time) (*TopicStat, bool, error) {
	var existing TopicStat
	err := s.db.WithContext(ctx).
		Where("topic = ? AND timestamp = ?", topic, ts).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &existing, true, nil
}

func (s *gormStorage) AddCounters(ctx context.Context, topic string, ts time.Time, c Counters) error {
	ts = ts.UTC().Truncate(time.Minute)

	existing, ok, err := s.bucket(ctx, topic, ts)
	if err != nil {
		return err
	}
	if !ok {
		return s.db.WithContext(ctx).Create(&TopicStat{
			Topic:     topic,
			Timestamp: ts,
			Completed: c.Completed,
			Failed:    c.Failed,
			Skipped:   c.Skipped,
		}).Error
	}

	return s.db.WithContext(ctx).Model(existing).Updates(map[string]any{
		"completed": gorm.Expr("completed + ?", c.Completed),
		"failed":    gorm.Expr("failed + ?", c.Failed),
		"skipped":   gorm.Expr("skipped + ?", c.Skipped),
	}).Error
}

func (s *gormStorage) SnapshotDepth(ctx context.Context, topic string, ts time.Time, pending, locked int64) error {
	ts = ts.UTC().Truncate(time.Minute)

	existing, ok, err := s.bucket(ctx, topic, ts)
	if err != nil {
		return err
	}
	if !ok {
		return s.db.WithContext(ctx).Create(&TopicStat{
			Topic:     topic,
			Timestamp: ts,
			Pending:   pending,
			Locked:    locked,
		}).Error
	}

	return s.db.WithContext(ctx).Model(existing).Updates(map[string]any{
		"pending": pending,
		"locked":  locked,
	}).Error
}

func (s *gormStorage) History(ctx context.Context, topic string, since, until time.Time) ([]TopicStat, error) {
	var stats []TopicStat
	q := s.db.WithContext(ctx).Order("timestamp ASC, topic ASC")

	if topic != "" {
		q = q.Where("topic = ?", topic)
	}
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since.UTC())
	}
	if !until.IsZero() {
		q = q.Where("timestamp <= ?", until.UTC())
	}

	return stats, q.Find(&stats).Error
}

func (s *gormStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("timestamp < ?", before.UTC()).Delete(&TopicStat{})
	return result.RowsAffected, result.Error
}
