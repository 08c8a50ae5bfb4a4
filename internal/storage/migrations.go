package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS vendor_memories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vendor TEXT NOT NULL,
					source_label TEXT NOT NULL,
					target_field TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0.3,
					usage_count INTEGER NOT NULL DEFAULT 0,
					reinforced_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (vendor, source_label, target_field)
				)`,

				// An empty vendor means the pattern applies globally.
				// Stored as '' rather than NULL so the UNIQUE
				// constraint actually enforces one row per key.
				`CREATE TABLE IF NOT EXISTS correction_memories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vendor TEXT NOT NULL DEFAULT '',
					pattern TEXT NOT NULL,
					remediation TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0.3,
					usage_count INTEGER NOT NULL DEFAULT 0,
					reinforced_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (vendor, pattern, remediation)
				)`,

				`CREATE TABLE IF NOT EXISTS resolution_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					document_id TEXT NOT NULL,
					vendor TEXT NOT NULL,
					memory_kind TEXT NOT NULL,
					memory_ref TEXT,
					approved INTEGER NOT NULL,
					confidence_delta REAL NOT NULL DEFAULT 0,
					timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS seen_documents (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vendor TEXT NOT NULL,
					document_number TEXT NOT NULL,
					first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (vendor, document_number)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add lookup indexes",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_vendor_memories_vendor ON vendor_memories(vendor)`,
				`CREATE INDEX IF NOT EXISTS idx_correction_memories_vendor ON correction_memories(vendor)`,
				`CREATE INDEX IF NOT EXISTS idx_correction_memories_pattern ON correction_memories(pattern)`,
				`CREATE INDEX IF NOT EXISTS idx_resolution_log_document ON resolution_log(document_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Track rejection counts on memories",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`ALTER TABLE vendor_memories ADD COLUMN rejected_count INTEGER NOT NULL DEFAULT 0`); err != nil {
				return fmt.Errorf("failed to add rejected_count to vendor_memories: %w", err)
			}
			if _, err := tx.Exec(`ALTER TABLE correction_memories ADD COLUMN rejected_count INTEGER NOT NULL DEFAULT 0`); err != nil {
				return fmt.Errorf("failed to add rejected_count to correction_memories: %w", err)
			}

			slog.Info("Added rejection tracking to memory tables")
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	return nil
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
