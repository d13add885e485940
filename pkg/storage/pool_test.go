package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 1*time.Minute, cfg.ConnMaxIdleTime)
}

func TestSQLitePoolConfig(t *testing.T) {
	cfg := SQLitePoolConfig()

	assert.Equal(t, 1, cfg.MaxOpenConns)
	assert.Equal(t, 1, cfg.MaxIdleConns)
}

func TestPoolOptions(t *testing.T) {
	cfg := PoolConfig{}

	MaxOpenConns(50).applyPool(&cfg)
	assert.Equal(t, 50, cfg.MaxOpenConns)

	MaxIdleConns(20).applyPool(&cfg)
	assert.Equal(t, 20, cfg.MaxIdleConns)

	ConnMaxLifetime(10 * time.Minute).applyPool(&cfg)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxLifetime)

	ConnMaxIdleTime(2 * time.Minute).applyPool(&cfg)
	assert.Equal(t, 2*time.Minute, cfg.ConnMaxIdleTime)

	WithPoolConfig(SQLitePoolConfig()).applyPool(&cfg)
	assert.Equal(t, SQLitePoolConfig(), cfg)
}

func TestConfigurePool(t *testing.T) {
	db := openMemoryDB(t)

	err := ConfigurePool(db,
		MaxOpenConns(30),
		MaxIdleConns(15),
		ConnMaxLifetime(7*time.Minute),
		ConnMaxIdleTime(90*time.Second),
	)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 30, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_DefaultValues(t *testing.T) {
	db := openMemoryDB(t)

	require.NoError(t, ConfigurePool(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestNewGormBrokerWithPool(t *testing.T) {
	db := openMemoryDB(t)

	broker, err := NewGormBrokerWithPool(db, []PoolOption{MaxOpenConns(40)}, WithWorkerID("w-1"))
	require.NoError(t, err)
	require.NotNil(t, broker)
	assert.Equal(t, "w-1", broker.WorkerID())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 40, sqlDB.Stats().MaxOpenConnections)
}

func TestOpen_SQLiteUsesSingleConnection(t *testing.T) {
	db, err := Open("sqlite:" + filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.Equal(t, "sqlite", db.Dialector.Name())
}

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	_, err := Open("sqlite:")
	assert.Error(t, err)
}

func TestPoolOptionFunc_ImplementsInterface(t *testing.T) {
	var opt PoolOption = poolOptionFunc(func(c *PoolConfig) {
		c.MaxOpenConns = 99
	})

	cfg := PoolConfig{}
	opt.applyPool(&cfg)

	assert.Equal(t, 99, cfg.MaxOpenConns)
}
