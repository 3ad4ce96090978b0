// Package store provides durable kv.Backend implementations on SQL.
//
// Two drivers are supported behind one code path:
//   - SQLite via mattn/go-sqlite3 (Open)
//   - Postgres via jackc/pgx/v5/stdlib (OpenPostgres)
//
// Tables:
//   - records: record_id -> (owner, payload)
//   - owner_index: (owner, position) -> record_id, position increasing
//     in append order
//   - calls: the engine's call journal, keyed by logical seq
//   - events: the durable event outbox
//
// Every Backend.Update runs inside a single database transaction, so the
// records and owner_index writes of a call commit together or not at all.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// All queries that return more than one row carry an explicit ORDER BY so
// results are identical across replays.
package store
