package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldmend/fieldmend/internal/model"
	"github.com/fieldmend/fieldmend/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// queryable abstracts over *sql.DB and *sql.Tx so repository queries
// can run either standalone or inside a transaction.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and a single
	// connection serializes read-modify-write sequences.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.

func (t *sqliteTransaction) GetVendorMemory(ctx context.Context, vendor, sourceLabel, targetField string) (*model.VendorMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getVendorMemoryTx(ctx, t.tx, vendor, sourceLabel, targetField)
}

func (t *sqliteTransaction) GetVendorMemories(ctx context.Context, vendor string) ([]model.VendorMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getVendorMemoriesTx(ctx, t.tx, vendor)
}

func (t *sqliteTransaction) UpsertVendorMemoryOnApproval(ctx context.Context, vendor, sourceLabel, targetField string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.upsertVendorMemoryTx(ctx, t.tx, vendor, sourceLabel, targetField)
}

func (t *sqliteTransaction) RejectVendorMemory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.rejectVendorMemoryTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetCorrectionMemory(ctx context.Context, vendor *string, pattern, remediation string) (*model.CorrectionMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCorrectionMemoryTx(ctx, t.tx, vendor, pattern, remediation)
}

func (t *sqliteTransaction) GetCorrectionMemories(ctx context.Context, vendor string) ([]model.CorrectionMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCorrectionMemoriesTx(ctx, t.tx, vendor)
}

func (t *sqliteTransaction) UpsertCorrectionMemoryOnApproval(ctx context.Context, vendor *string, pattern, remediation string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.upsertCorrectionMemoryTx(ctx, t.tx, vendor, pattern, remediation)
}

func (t *sqliteTransaction) RejectCorrectionMemory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.rejectCorrectionMemoryTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) IsSeen(ctx context.Context, vendor, documentNumber string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return t.storage.isSeenTx(ctx, t.tx, vendor, documentNumber)
}

func (t *sqliteTransaction) MarkSeen(ctx context.Context, vendor, documentNumber string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.markSeenTx(ctx, t.tx, vendor, documentNumber)
}

func (t *sqliteTransaction) AppendResolution(ctx context.Context, record *model.ResolutionRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateResolutionRecord(record); err != nil {
		return err
	}
	return t.storage.appendResolutionTx(ctx, t.tx, record)
}

func (t *sqliteTransaction) GetResolutions(ctx context.Context, documentID string) ([]model.ResolutionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getResolutionsTx(ctx, t.tx, documentID)
}

func (t *sqliteTransaction) SeedDefaultCorrections(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.seedDefaultCorrectionsTx(ctx, t.tx)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
