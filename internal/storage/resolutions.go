package storage

import (
	"context"
	"fmt"

	"github.com/fieldmend/fieldmend/internal/model"
)

// AppendResolution appends a record to the resolution log. The log is
// append-only; records are never updated or deleted. The record's ID
// and timestamp are filled in on success.
func (s *SQLiteStorage) AppendResolution(ctx context.Context, record *model.ResolutionRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateResolutionRecord(record); err != nil {
		return err
	}
	return s.appendResolutionTx(ctx, s.db, record)
}

func (s *SQLiteStorage) appendResolutionTx(ctx context.Context, q queryable, record *model.ResolutionRecord) error {
	now := s.now().UTC()

	result, err := q.ExecContext(ctx, `
		INSERT INTO resolution_log (
			document_id, vendor, memory_kind, memory_ref,
			approved, confidence_delta, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.DocumentID, record.Vendor, record.MemoryKind, record.MemoryRef,
		record.Approved, record.ConfidenceDelta, now)
	if err != nil {
		return fmt.Errorf("failed to append resolution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get resolution ID: %w", err)
	}

	record.ID = id
	record.Timestamp = now
	return nil
}

// GetResolutions retrieves all resolution records for a document,
// newest first.
func (s *SQLiteStorage) GetResolutions(ctx context.Context, documentID string) ([]model.ResolutionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}
	return s.getResolutionsTx(ctx, s.db, documentID)
}

func (s *SQLiteStorage) getResolutionsTx(ctx context.Context, q queryable, documentID string) ([]model.ResolutionRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, document_id, vendor, memory_kind, memory_ref,
			approved, confidence_delta, timestamp
		FROM resolution_log
		WHERE document_id = ?
		ORDER BY timestamp DESC, id DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ResolutionRecord
	for rows.Next() {
		var record model.ResolutionRecord
		if scanErr := rows.Scan(
			&record.ID,
			&record.DocumentID,
			&record.Vendor,
			&record.MemoryKind,
			&record.MemoryRef,
			&record.Approved,
			&record.ConfidenceDelta,
			&record.Timestamp,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", scanErr)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
