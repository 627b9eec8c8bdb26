package repository

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	dsn := dbPath
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	// Foreign keys are a per-connection setting so they go in the DSN
	dsn += "_foreign_keys=on&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; serialising on one connection keeps
	// integration transactions from failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Names (customers, suppliers, patients, stores)
	CREATE TABLE IF NOT EXISTS name (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		type TEXT NOT NULL,
		is_customer BOOLEAN NOT NULL DEFAULT 0,
		is_supplier BOOLEAN NOT NULL DEFAULT 0,
		is_on_hold BOOLEAN NOT NULL DEFAULT 0
	);

	-- Stores
	CREATE TABLE IF NOT EXISTS store (
		id TEXT PRIMARY KEY,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		code TEXT NOT NULL,
		site_id INTEGER NOT NULL,
		store_mode TEXT NOT NULL DEFAULT 'STORE',
		is_disabled BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_store_site_id ON store(site_id);

	-- Name visibility per store
	CREATE TABLE IF NOT EXISTS name_store_join (
		id TEXT PRIMARY KEY,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		store_id TEXT NOT NULL REFERENCES store(id),
		is_inactive BOOLEAN NOT NULL DEFAULT 0
	);

	-- Stocktakes
	CREATE TABLE IF NOT EXISTS stocktake (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL REFERENCES store(id),
		user_id TEXT NOT NULL,
		stocktake_number INTEGER NOT NULL,
		comment TEXT,
		description TEXT,
		status TEXT NOT NULL,
		created_datetime DATETIME NOT NULL,
		stocktake_date DATE,
		finalised_datetime DATETIME,
		inventory_addition_id TEXT,
		inventory_reduction_id TEXT,
		is_locked BOOLEAN NOT NULL DEFAULT 0
	);

	-- Invoices (shipments and prescriptions)
	CREATE TABLE IF NOT EXISTS invoice (
		id TEXT PRIMARY KEY,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		store_id TEXT NOT NULL REFERENCES store(id),
		user_id TEXT,
		invoice_number INTEGER NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		on_hold BOOLEAN NOT NULL DEFAULT 0,
		comment TEXT,
		their_reference TEXT,
		created_datetime DATETIME NOT NULL,
		picked_datetime DATETIME,
		shipped_datetime DATETIME,
		delivered_datetime DATETIME,
		verified_datetime DATETIME,
		linked_invoice_id TEXT,
		requisition_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_linked ON invoice(linked_invoice_id);

	-- Invoice lines
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
		pack_size REAL NOT NULL,
		cost_price_per_pack REAL NOT NULL,
		sell_price_per_pack REAL NOT NULL,
		number_of_packs REAL NOT NULL,
		type TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_line_invoice ON invoice_line(invoice_id);

	-- Requisitions
	CREATE TABLE IF NOT EXISTS requisition (
		id TEXT PRIMARY KEY,
		requisition_number INTEGER NOT NULL,
		name_link_id TEXT NOT NULL REFERENCES name(id),
		store_id TEXT NOT NULL REFERENCES store(id),
		user_id TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_datetime DATETIME NOT NULL,
		sent_datetime DATETIME,
		finalised_datetime DATETIME,
		expected_delivery_date DATE,
		comment TEXT,
		their_reference TEXT,
		max_months_of_stock REAL NOT NULL DEFAULT 0,
		min_months_of_stock REAL NOT NULL DEFAULT 0,
		linked_requisition_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requisition_linked ON requisition(linked_requisition_id);

	-- Attachments owned by other records
	CREATE TABLE IF NOT EXISTS sync_file_reference (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		store_id TEXT REFERENCES store(id),
		file_name TEXT NOT NULL,
		mime_type TEXT,
		total_bytes INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'NEW',
		created_datetime DATETIME NOT NULL
	);

	-- Changelog (one row per mutation, cursor never reused)
	CREATE TABLE IF NOT EXISTS changelog (
		cursor INTEGER PRIMARY KEY AUTOINCREMENT,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		row_action TEXT NOT NULL,
		store_id TEXT,
		name_link_id TEXT,
		last_sync_site_id INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_changelog_table_name ON changelog(table_name);
	CREATE INDEX IF NOT EXISTS idx_changelog_store_id ON changelog(store_id);
	CREATE INDEX IF NOT EXISTS idx_changelog_name_link_id ON changelog(name_link_id);

	-- Cursors and flags
	CREATE TABLE IF NOT EXISTS key_value_store (
		id TEXT PRIMARY KEY,
		value_int INTEGER,
		value_string TEXT
	);

	-- Sync cycles
	CREATE TABLE IF NOT EXISTS sync_log (
		id TEXT PRIMARY KEY,
		started_datetime DATETIME NOT NULL,
		finished_datetime DATETIME,
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

	-- Records received from the remote side awaiting integration
	CREATE TABLE IF NOT EXISTS sync_buffer (
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		action TEXT NOT NULL,
		data TEXT NOT NULL,
		received_datetime DATETIME NOT NULL,
		integration_datetime DATETIME,
		integration_error TEXT,
		source_site_id INTEGER,
		PRIMARY KEY (table_name, record_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sync_buffer_integration ON sync_buffer(integration_datetime);
	`

	_, err := db.Exec(schema)
	return err
}
