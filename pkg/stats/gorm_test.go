package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStatsDB(t *testing.T) *gormStorage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := &gormStorage{db: db}
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestGormStorage_AddAndQuery(t *testing.T) {
	s := setupTestStatsDB(t)
	ctx := context.Background()
	ts := time.Now().Truncate(time.Minute)

	// First add creates a row
	require.NoError(t, s.AddCounters(ctx, "quote.create", ts, Counters{Completed: 5, Failed: 2, Skipped: 1}))

	// Second add increments
	require.NoError(t, s.AddCounters(ctx, "quote.create", ts.Add(10*time.Second), Counters{Completed: 3, Failed: 1}))

	require.NoError(t, s.SnapshotDepth(ctx, "quote.create", ts, 10, 3))

	stats, err := s.History(ctx, "", ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stats, 1)

	assert.Equal(t, "quote.create", stats[0].Topic)
	assert.Equal(t, int64(8), stats[0].Completed)
	assert.Equal(t, int64(3), stats[0].Failed)
	assert.Equal(t, int64(1), stats[0].Skipped)
	assert.Equal(t, int64(10), stats[0].Pending)
	assert.Equal(t, int64(3), stats[0].Locked)
}

func TestGormStorage_QueryByTopic(t *testing.T) {
	s := setupTestStatsDB(t)
	ctx := context.Background()
	ts := time.Now().Truncate(time.Minute)

	require.NoError(t, s.AddCounters(ctx, "a", ts, Counters{Completed: 1}))
	require.NoError(t, s.AddCounters(ctx, "b", ts, Counters{Completed: 2}))

	stats, err := s.History(ctx, "b", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Completed)

	all, err := s.History(ctx, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGormStorage_Prune(t *testing.T) {
	s := setupTestStatsDB(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	require.NoError(t, s.AddCounters(ctx, "a", old, Counters{Completed: 1}))
	require.NoError(t, s.AddCounters(ctx, "a", recent, Counters{Completed: 1}))

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := s.History(ctx, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, recent.UTC().Truncate(time.Minute).Unix(), all[0].Timestamp.Unix())
}
