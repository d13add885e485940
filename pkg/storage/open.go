package storage

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database named by dsn and configures its pool.
// "postgres://" and "postgresql://" URLs and key=value strings containing
// "host=" use PostgreSQL; "sqlite:" prefixed paths, file: URIs and bare
// paths use SQLite.
func Open(dsn string, opts ...PoolOption) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	pool := []PoolOption{}
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	default:
		path := strings.TrimPrefix(dsn, "sqlite:")
		if path == "" {
			return nil, fmt.Errorf("tasks: empty database dsn")
		}
		db, err = gorm.Open(sqlite.Open(path), cfg)
		pool = append(pool, WithPoolConfig(SQLitePoolConfig()))
	}
	if err != nil {
		return nil, fmt.Errorf("tasks: open database: %w", err)
	}

	if err := ConfigurePool(db, append(pool, opts...)...); err != nil {
		return nil, err
	}
	return db, nil
}
