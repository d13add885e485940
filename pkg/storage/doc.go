// Package storage provides an embedded, database-backed task broker.
//
// This package includes:
//   - GormBroker: a GORM implementation of core.Broker and core.TaskService
//     with fetch-and-lock semantics matching the external-task REST API
//   - A cron-driven sweeper that returns tasks with expired locks to the queue
//   - Connection pool helpers and a DSN opener for SQLite and PostgreSQL
//
// It lets workers run end to end without an engine, for local development
// and tests.
package storage
