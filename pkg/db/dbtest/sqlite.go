// Package dbtest opens throwaway sqlite databases that mirror the Postgres
// schema closely enough for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Schema mirrors pkg/migrate/migrations with sqlite types. Partial and
// expression indexes are kept so uniqueness backstops behave like Postgres.
var Schema = []string{
	`CREATE TABLE business_profiles (
		user_id TEXT PRIMARY KEY,
		business_name TEXT NOT NULL,
		contact_name TEXT,
		email TEXT NOT NULL,
		phone TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE quotes (
		id TEXT PRIMARY KEY,
		catalog_id TEXT NOT NULL,
		replicated_catalog_id TEXT,
		recipient_user_id TEXT NOT NULL,
		requester_user_id TEXT,
		requester_name TEXT NOT NULL,
		requester_email TEXT NOT NULL,
		requester_company TEXT,
		requester_phone TEXT,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		delivery_method TEXT NOT NULL,
		consolidated_draft_id TEXT,
		total_cents INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE quote_items (
		id TEXT PRIMARY KEY,
		quote_id TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		product_name TEXT NOT NULL,
		product_sku TEXT,
		variant_description TEXT,
		product_image_url TEXT,
		quantity INTEGER NOT NULL,
		unit_price_cents INTEGER NOT NULL,
		subtotal_cents INTEGER NOT NULL,
		price_type TEXT NOT NULL DEFAULT 'retail',
		origin_replicated_catalog_id TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE consolidated_order_drafts (
		id TEXT PRIMARY KEY,
		distributor_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		source_catalog_id TEXT NOT NULL,
		source_replicated_catalog_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		linked_quote_id TEXT,
		notes TEXT,
		sent_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_consolidated_order_drafts_open
		ON consolidated_order_drafts (distributor_id, supplier_id) WHERE status = 'draft'`,
	`CREATE TABLE consolidated_order_items (
		id TEXT PRIMARY KEY,
		draft_id TEXT NOT NULL REFERENCES consolidated_order_drafts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		product_name TEXT NOT NULL,
		product_sku TEXT,
		variant_description TEXT,
		product_image_url TEXT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents INTEGER NOT NULL,
		subtotal_cents INTEGER NOT NULL,
		source_quote_ids TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_consolidated_order_items_bucket
		ON consolidated_order_items (draft_id, product_id, COALESCE(variant_id, ''))`,
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
	)`,
}

// Open returns an isolated in-memory database with Schema applied. Each call
// gets its own named database so tests never share rows.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, ddl := range Schema {
		if err := conn.Exec(ddl).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
