// Package jobstore provides the persistence contract for scheduled jobs and its drivers.
//
// Drivers:
//   - "memory":   process-local map (default)
//   - "file":     JSON snapshot + append-only journal
//   - "sqlite":   SQLite database file (modernc.org/sqlite, pure Go)
//   - "redis":    Redis keys + a sorted set for insertion order
//   - "postgres": PostgreSQL table (pgx)
//
// Every driver lists jobs in insertion order; updating a job keeps its position.
package jobstore
