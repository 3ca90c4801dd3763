// Package dbtest opens isolated in-memory SQLite databases carrying the service schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT,
  customer_first_name TEXT NOT NULL,
  customer_last_name TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  customer_email TEXT,
  shipping_address TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  shipping TEXT NOT NULL,
  tax TEXT NOT NULL,
  discount TEXT NOT NULL,
  total TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  payment_method TEXT NOT NULL,
  payment_ref TEXT,
  status TEXT NOT NULL,
  cod_status TEXT,
  parcel_sync_status TEXT NOT NULL,
  parcel_sync_error TEXT,
  paid_at DATETIME,
  fulfillment_completed_at DATETIME,
  fulfillment_claimed_until DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  sku TEXT,
  price TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  is_virtual INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  sku TEXT,
  price TEXT NOT NULL,
  is_virtual INTEGER NOT NULL,
  course_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS parcels (
  id TEXT PRIMARY KEY,
  order_id TEXT,
  legacy_order_id TEXT,
  tracking TEXT,
  firstname TEXT NOT NULL,
  familyname TEXT NOT NULL,
  contact_phone TEXT NOT NULL,
  address TEXT NOT NULL,
  to_wilaya_name TEXT NOT NULL,
  to_commune_name TEXT NOT NULL,
  is_stopdesk INTEGER NOT NULL,
  stopdesk_id INTEGER,
  freeshipping INTEGER NOT NULL,
  price INTEGER NOT NULL,
  product_list TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_parcels_order_id ON parcels(order_id);`,
	`CREATE TABLE IF NOT EXISTS tuning_files (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  file_name TEXT NOT NULL,
  status TEXT NOT NULL,
  estimated_processing_time INTEGER,
  estimate_set_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
  id TEXT PRIMARY KEY,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  action TEXT NOT NULL,
  old_value TEXT,
  new_value TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS license_keys (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  key_value TEXT NOT NULL UNIQUE,
  order_id TEXT,
  order_item_id TEXT,
  user_id TEXT,
  assigned_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS download_grants (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  order_item_id TEXT NOT NULL UNIQUE,
  product_id TEXT NOT NULL,
  user_id TEXT,
  token TEXT NOT NULL UNIQUE,
  expires_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS course_enrollments (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE(user_id, course_id)
);`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  audience TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
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
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_dlq_event_id ON outbox_dlq (event_id);`,
}

// Open returns a fresh database named after the running test. A single
// connection keeps the shared-cache database alive and serializes writers, so
// code under test must use the transaction handle it is given.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
