package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
	Checksum    string    `db:"checksum"`
}

// checksum fingerprints the migration body so a rewritten migration is detected.
func (m *Migration) checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					checksum TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create ledger_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ledger_events (
					sequence INTEGER PRIMARY KEY,
					id TEXT NOT NULL UNIQUE,
					type TEXT NOT NULL,
					actor TEXT NOT NULL,
					timestamp INTEGER NOT NULL,
					data TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(type);
				CREATE INDEX IF NOT EXISTS idx_ledger_events_actor ON ledger_events(actor);
				CREATE INDEX IF NOT EXISTS idx_ledger_events_timestamp ON ledger_events(timestamp);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id SERIAL PRIMARY KEY,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					checksum TEXT NOT NULL,
					applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create ledger_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ledger_events (
					sequence BIGINT PRIMARY KEY,
					id TEXT NOT NULL UNIQUE,
					type TEXT NOT NULL,
					actor TEXT NOT NULL,
					timestamp BIGINT NOT NULL,
					data JSONB NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(type);
				CREATE INDEX IF NOT EXISTS idx_ledger_events_actor ON ledger_events(actor);
				CREATE INDEX IF NOT EXISTS idx_ledger_events_timestamp ON ledger_events(timestamp);
			`,
		},
	}
}
