// Package database opens database/sql connection pools for the targets a
// pipeline loads into and for the run log, and knows how each supported
// driver reports idempotency violations.
//
// Supported drivers:
//
//   - clickhouse: warehouse and mart targets (clickhouse-go)
//   - pgx: Postgres targets and run log (jackc/pgx stdlib)
//   - sqlite: local run log and small targets (modernc.org/sqlite)
//
// Each driver has a Dialect describing whether scripts can run inside a
// transaction and which Classifier maps its errors to an ErrorKind.
package database
