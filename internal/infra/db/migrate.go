package db

import (
	"database/sql"
	"fmt"
)

// DefaultCollectionID is seeded by the migrations so single-report ingestion
// works against an empty catalog.
const DefaultCollectionID = "dropsondes"

// Migrate applies the schema for driver.
func Migrate(db *sql.DB, driver string) error {
	switch driver {
	case DriverPostgres:
		return MigrateUp(db)
	case DriverSQLite:
		return MigrateUpSQLite(db)
	default:
		return fmt.Errorf("unsupported catalog driver %q", driver)
	}
}

// MigrateUp creates the PostgreSQL catalog schema.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS collections (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS items (
    collection     TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    id             TEXT NOT NULL,
    datetime       TIMESTAMPTZ NOT NULL,
    start_datetime TIMESTAMPTZ NOT NULL,
    end_datetime   TIMESTAMPTZ NOT NULL,
    source_url     TEXT NOT NULL DEFAULT '',
    content        JSONB NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
)`); err != nil {
		return err
	}

	indexes := []string{
		// temporal search
		`CREATE INDEX IF NOT EXISTS idx_items_datetime ON items(datetime DESC)`,
		// provenance lookups when re-ingesting an archive
		`CREATE INDEX IF NOT EXISTS idx_items_source_url ON items(source_url)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	if _, err := db.Exec(`
INSERT INTO collections (id, title, description)
VALUES ($1, 'Dropsondes', 'Dropsonde profiles ingested from TEMP DROP reports')
ON CONFLICT (id) DO NOTHING`, DefaultCollectionID); err != nil {
		return err
	}

	return nil
}

// MigrateUpSQLite creates the SQLite catalog schema. Timestamps are stored as
// RFC 3339 text.
func MigrateUpSQLite(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS collections (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`,
		`CREATE TABLE IF NOT EXISTS items (
    collection     TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    id             TEXT NOT NULL,
    datetime       TEXT NOT NULL,
    start_datetime TEXT NOT NULL,
    end_datetime   TEXT NOT NULL,
    source_url     TEXT NOT NULL DEFAULT '',
    content        TEXT NOT NULL,
    created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    updated_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (collection, id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_items_datetime ON items(datetime)`,
		`CREATE INDEX IF NOT EXISTS idx_items_source_url ON items(source_url)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	if _, err := db.Exec(`
INSERT INTO collections (id, title, description)
VALUES (?, 'Dropsondes', 'Dropsonde profiles ingested from TEMP DROP reports')
ON CONFLICT (id) DO NOTHING`, DefaultCollectionID); err != nil {
		return err
	}

	return nil
}

// MigrateDown drops the catalog schema.
// Use with caution: this will delete all data in the affected tables.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP INDEX IF EXISTS idx_items_source_url`,
		`DROP INDEX IF EXISTS idx_items_datetime`,
		`DROP TABLE IF EXISTS items`,
		`DROP TABLE IF EXISTS collections`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
