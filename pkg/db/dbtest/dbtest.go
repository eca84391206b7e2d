// Package dbtest opens isolated in-memory SQLite databases carrying the
// service schema so repository and workflow tests run without Postgres.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns a fresh database with every table created. The pool is pinned
// to one connection, so code running inside a transaction must only use the
// transaction handle.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

var schema = []string{
	`CREATE TABLE registers (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL UNIQUE,
		prefix TEXT NOT NULL UNIQUE,
		label TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE register_balances (
		register_id TEXT NOT NULL REFERENCES registers(id),
		currency TEXT NOT NULL,
		balance NUMERIC NOT NULL DEFAULT 0,
		updated_at DATETIME,
		PRIMARY KEY (register_id, currency),
		CHECK (balance >= 0)
	)`,
	`CREATE TABLE register_transactions (
		id TEXT PRIMARY KEY,
		register_id TEXT NOT NULL REFERENCES registers(id),
		type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		balance_after NUMERIC NOT NULL,
		request_id TEXT,
		reason TEXT,
		actor TEXT NOT NULL,
		method_details TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE funding_requests (
		id TEXT PRIMARY KEY,
		register_id TEXT NOT NULL REFERENCES registers(id),
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL,
		requested_date DATE NOT NULL,
		submitter TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT NOT NULL,
		method TEXT,
		method_details TEXT,
		balance_applied BOOLEAN NOT NULL DEFAULT 0,
		rejection_reason TEXT,
		pre_approved_by TEXT,
		finalized_by TEXT,
		finalized_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE funding_history (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES funding_requests(id),
		stage TEXT NOT NULL,
		actor TEXT NOT NULL,
		details TEXT,
		occurred_at DATETIME NOT NULL
	)`,
	`CREATE TABLE funding_issues (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES funding_requests(id),
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		reported_by TEXT NOT NULL,
		reported_at DATETIME NOT NULL,
		resolved_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		currency TEXT NOT NULL,
		register_id TEXT NOT NULL REFERENCES registers(id),
		amount_paid NUMERIC NOT NULL DEFAULT 0,
		remaining_amount NUMERIC NOT NULL DEFAULT 0,
		payment_done BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE proformas (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		supplier TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		validated BOOLEAN NOT NULL DEFAULT 0,
		validated_by TEXT,
		validated_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX proformas_single_validated_idx ON proformas (order_id) WHERE validated`,
	`CREATE TABLE payment_requests (
		id TEXT PRIMARY KEY,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		beneficiary TEXT NOT NULL,
		reason TEXT NOT NULL,
		register_id TEXT NOT NULL REFERENCES registers(id),
		amount_paid NUMERIC NOT NULL DEFAULT 0,
		remaining_amount NUMERIC NOT NULL DEFAULT 0,
		payment_done BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		payment_number TEXT NOT NULL UNIQUE,
		disbursement_number TEXT UNIQUE,
		mode TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		fee NUMERIC NOT NULL DEFAULT 0,
		method_details TEXT,
		status TEXT NOT NULL,
		accounting_required BOOLEAN NOT NULL DEFAULT 0,
		register_id TEXT,
		recorded_by TEXT NOT NULL,
		modified_by TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE sequence_counters (
		family TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT '',
		period TEXT NOT NULL,
		seq INTEGER NOT NULL,
		updated_at DATETIME,
		PRIMARY KEY (family, scope, period)
	)`,
	`CREATE TABLE action_jobs (
		id TEXT PRIMARY KEY,
		action_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		next_attempt_at DATETIME NOT NULL,
		locked_by TEXT,
		locked_at DATETIME,
		last_error TEXT,
		result TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}
