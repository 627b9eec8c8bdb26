package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	// Sequence values are visible only at commit, and concurrent pushes
	// commit in any order
	OrderChangelogWriters(true)

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS name (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		type TEXT NOT NULL,
		is_customer BOOLEAN NOT NULL DEFAULT false,
		is_supplier BOOLEAN NOT NULL DEFAULT false,
		is_on_hold BOOLEAN NOT NULL DEFAULT false
	);

	CREATE TABLE IF NOT EXISTS store (
		id TEXT PRIMARY KEY,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		code TEXT NOT NULL,
		site_id INTEGER NOT NULL,
		store_mode TEXT NOT NULL DEFAULT 'STORE',
		is_disabled BOOLEAN NOT NULL DEFAULT false
	);

	CREATE INDEX IF NOT EXISTS idx_store_site_id ON store(site_id);

	CREATE TABLE IF NOT EXISTS name_store_join (
		id TEXT PRIMARY KEY,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		store_id TEXT NOT NULL REFERENCES store(id),
		is_inactive BOOLEAN NOT NULL DEFAULT false
	);

	CREATE TABLE IF NOT EXISTS stocktake (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL REFERENCES store(id),
		user_id TEXT NOT NULL,
		stocktake_number BIGINT NOT NULL,
		comment TEXT,
		description TEXT,
		status TEXT NOT NULL,
		created_datetime TIMESTAMP NOT NULL,
		stocktake_date DATE,
		finalised_datetime TIMESTAMP,
		inventory_addition_id TEXT,
		inventory_reduction_id TEXT,
		is_locked BOOLEAN NOT NULL DEFAULT false
	);

	CREATE TABLE IF NOT EXISTS invoice (
		id TEXT PRIMARY KEY,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		store_id TEXT NOT NULL REFERENCES store(id),
		user_id TEXT,
		invoice_number BIGINT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		on_hold BOOLEAN NOT NULL DEFAULT false,
		comment TEXT,
		their_reference TEXT,
		created_datetime TIMESTAMP NOT NULL,
		picked_datetime TIMESTAMP,
		shipped_datetime TIMESTAMP,
		delivered_datetime TIMESTAMP,
		verified_datetime TIMESTAMP,
		linked_invoice_id TEXT,
		requisition_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_linked ON invoice(linked_invoice_id);

	CREATE TABLE IF NOT EXISTS invoice_line (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoice(id),
		item_link_id TEXT NOT NULL,
		item_name TEXT NOT NULL,
		item_code TEXT NOT NULL,
		stock_line_id TEXT,
		location_id TEXT,
		batch TEXT,
		expiry_date DATE,
		pack_size DOUBLE PRECISION NOT NULL,
		cost_price_per_pack DOUBLE PRECISION NOT NULL,
		sell_price_per_pack DOUBLE PRECISION NOT NULL,
		number_of_packs DOUBLE PRECISION NOT NULL,
		type TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_line_invoice ON invoice_line(invoice_id);

	CREATE TABLE IF NOT EXISTS requisition (
		id TEXT PRIMARY KEY,
		requisition_number BIGINT NOT NULL,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		store_id TEXT NOT NULL REFERENCES store(id),
		user_id TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_datetime TIMESTAMP NOT NULL,
		sent_datetime TIMESTAMP,
		finalised_datetime TIMESTAMP,
		expected_delivery_date DATE,
		comment TEXT,
		their_reference TEXT,
		max_months_of_stock DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_months_of_stock DOUBLE PRECISION NOT NULL DEFAULT 0,
		linked_requisition_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requisition_linked ON requisition(linked_requisition_id);

	CREATE TABLE IF NOT EXISTS sync_file_reference (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		store_id TEXT REFERENCES store(id),
		file_name TEXT NOT NULL,
		mime_type TEXT,
		total_bytes BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'NEW',
		created_datetime TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS changelog (
		cursor BIGSERIAL PRIMARY KEY,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		row_action TEXT NOT NULL,
		store_id TEXT,
		name_link_id TEXT,
		last_sync_site_id INTEGER,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_changelog_table_name ON changelog(table_name);
	CREATE INDEX IF NOT EXISTS idx_changelog_store_id ON changelog(store_id);
	CREATE INDEX IF NOT EXISTS idx_changelog_name_link_id ON changelog(name_link_id);

	CREATE TABLE IF NOT EXISTS key_value_store (
		id TEXT PRIMARY KEY,
		value_int BIGINT,
		value_string TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_log (
		id TEXT PRIMARY KEY,
		started_datetime TIMESTAMP NOT NULL,
		finished_datetime TIMESTAMP,
		prepare_initial TEXT NOT NULL DEFAULT '{}',
		push TEXT NOT NULL DEFAULT '{}',
		wait_for_integration TEXT NOT NULL DEFAULT '{}',
		pull_central TEXT NOT NULL DEFAULT '{}',
		pull_remote TEXT NOT NULL DEFAULT '{}',
		integration TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		error_code TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sync_log_started ON sync_log(started_datetime);

	CREATE TABLE IF NOT EXISTS sync_buffer (
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		action TEXT NOT NULL,
		data TEXT NOT NULL,
		received_datetime TIMESTAMP NOT NULL,
		integration_datetime TIMESTAMP,
		integration_error TEXT,
		source_site_id INTEGER,
		PRIMARY KEY (table_name, record_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sync_buffer_integration ON sync_buffer(integration_datetime);
	`

	_, err := db.Exec(schema)
	return err
}
