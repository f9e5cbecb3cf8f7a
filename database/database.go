package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// InitDatabase opens the database and creates the engine's tables and base
// indexes if they do not exist yet.
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS search_records (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		brand TEXT NOT NULL,
		image_path TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(brand, image_path)
	);
	CREATE INDEX IF NOT EXISTS idx_search_brand ON search_records(brand);

	CREATE TABLE IF NOT EXISTS listing_mirrors (
		listing_id TEXT PRIMARY KEY,
		brand TEXT NOT NULL DEFAULT '',
		seller_uid TEXT NOT NULL DEFAULT '',
		canonical_ref_path TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS match_audits (
		listing_id TEXT NOT NULL,
		counterparty_id TEXT NOT NULL,
		score REAL NOT NULL,
		search_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (listing_id, counterparty_id)
	);

	CREATE TABLE IF NOT EXISTS inbox_entries (
		recipient_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		score REAL NOT NULL,
		seller_uid TEXT NOT NULL DEFAULT '',
		listing_ref TEXT NOT NULL DEFAULT '',
		source_tag TEXT NOT NULL DEFAULT '',
		seen INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (recipient_id, listing_id)
	);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

// EnsureSearchIndexes creates the compound (brand, is_active) index the
// primary active-search query pins. Kept separate from InitDatabase so a
// database whose migrations have not run yet still answers queries through
// the fallback path.
func EnsureSearchIndexes(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_search_brand_active ON search_records(brand, is_active);`)
	if err != nil {
		return fmt.Errorf("create search indexes: %w", err)
	}
	return nil
}

// OpenDatabase opens an existing database without touching the schema.
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath)
}
