// Package dbtest opens isolated in-memory sqlite databases carrying the
// settlement schema for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Open returns a fresh database with every settlement table created.
// The pool is pinned to one connection so transactions serialize the way
// row locks would on postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
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
	`CREATE TABLE tax_codes (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  rate TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE customers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT,
  tax_code_id TEXT,
  deleted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  price TEXT NOT NULL,
  tax_code_id TEXT,
  product_group_id TEXT,
  track_inventory INTEGER NOT NULL DEFAULT 0,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  deleted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE services (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  price TEXT NOT NULL,
  tax_code_id TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  deleted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE discounts (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  value TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  starts_at DATETIME,
  ends_at DATETIME,
  applies_to_all INTEGER NOT NULL DEFAULT 0,
  deleted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE discount_items (
  id TEXT PRIMARY KEY,
  discount_id TEXT NOT NULL,
  target_type TEXT NOT NULL,
  target_id TEXT NOT NULL,
  mode TEXT NOT NULL DEFAULT 'allowed',
  created_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'draft',
  customer_id TEXT,
  created_by TEXT NOT NULL,
  cash_drawer_session_id TEXT,
  subtotal TEXT NOT NULL DEFAULT '0',
  discount_total TEXT NOT NULL DEFAULT '0',
  tax_total TEXT NOT NULL DEFAULT '0',
  total TEXT NOT NULL DEFAULT '0',
  tax_exempt INTEGER NOT NULL DEFAULT 0,
  tax_exempt_certificate TEXT,
  notes TEXT,
  overridden_discount_ids TEXT NOT NULL DEFAULT '[]',
  held_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  deleted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  sellable_type TEXT NOT NULL,
  sellable_id TEXT NOT NULL,
  code TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  tax_code_id TEXT,
  tax_rate TEXT NOT NULL DEFAULT '0',
  product_group_id TEXT,
  discount_amount TEXT NOT NULL DEFAULT '0',
  tax_amount TEXT NOT NULL DEFAULT '0',
  line_total TEXT NOT NULL DEFAULT '0',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_line_discounts (
  id TEXT PRIMARY KEY,
  order_line_id TEXT NOT NULL,
  discount_id TEXT,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  value TEXT NOT NULL,
  calculated_amount TEXT NOT NULL DEFAULT '0',
  auto_applied INTEGER NOT NULL DEFAULT 0,
  excluded_quantity INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_discounts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  value TEXT NOT NULL,
  scope TEXT NOT NULL DEFAULT 'all_items',
  line_ids TEXT NOT NULL DEFAULT '[]',
  calculated_amount TEXT NOT NULL DEFAULT '0',
  created_by TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE gift_certificates (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  initial_amount TEXT NOT NULL,
  remaining_balance TEXT NOT NULL,
  sold_on_order_id TEXT,
  activated_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  method TEXT NOT NULL,
  amount TEXT NOT NULL,
  amount_tendered TEXT NOT NULL DEFAULT '0',
  change_given TEXT NOT NULL DEFAULT '0',
  gift_certificate_id TEXT,
  reference TEXT,
  created_by TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE order_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  payload TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE refunds (
  id TEXT PRIMARY KEY,
  refund_number TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  total TEXT NOT NULL,
  processed_by TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE refund_lines (
  id TEXT PRIMARY KEY,
  refund_id TEXT NOT NULL,
  order_line_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  amount TEXT NOT NULL,
  restock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
	`CREATE TABLE cash_drawer_sessions (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'open',
  opened_by TEXT NOT NULL,
  closed_by TEXT,
  opening_counts TEXT NOT NULL,
  opening_total_cents INTEGER NOT NULL,
  closing_counts TEXT,
  closing_total_cents INTEGER,
  expected_closing_cents INTEGER,
  discrepancy_cents INTEGER,
  notes TEXT,
  opened_at DATETIME NOT NULL,
  closed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_cash_drawer_sessions_single_open ON cash_drawer_sessions (status) WHERE status = 'open';`,
	`CREATE TABLE terminal_reconciliations (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  reconciled_by TEXT NOT NULL,
  debit_expected_cents INTEGER NOT NULL,
  debit_actual_cents INTEGER NOT NULL,
  debit_discrepancy_cents INTEGER NOT NULL,
  credit_expected_cents INTEGER NOT NULL,
  credit_actual_cents INTEGER NOT NULL,
  credit_discrepancy_cents INTEGER NOT NULL,
  notes TEXT,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_terminal_reconciliations_session ON terminal_reconciliations (session_id);`,
	`CREATE TABLE document_sequences (
  name TEXT PRIMARY KEY,
  value INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
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
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME
);`,
}
