package database

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_alerts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	cryptocurrency TEXT NOT NULL,
	alert_type TEXT NOT NULL,
	condition TEXT NOT NULL DEFAULT 'above',
	target_price REAL,
	percentage_change REAL,
	volume_threshold REAL,
	creation_price REAL,
	email_notification INTEGER NOT NULL DEFAULT 1,
	is_active INTEGER NOT NULL DEFAULT 1,
	triggered_at TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_alerts_active ON price_alerts (is_active, triggered_at);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT
);

CREATE TABLE IF NOT EXISTS metrics (
	metric_name TEXT NOT NULL,
	label_key TEXT NOT NULL DEFAULT '',
	label_value TEXT NOT NULL DEFAULT '',
	metric_value REAL NOT NULL,
	PRIMARY KEY (metric_name, label_key, label_value)
);`

// Open opens the sqlite database at dbPath and makes sure the schema exists.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY between sweeps and the CLI.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}

	log.Debugf("Database initialized at %s", dbPath)
	return db, nil
}
