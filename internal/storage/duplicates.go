package storage

import (
	"context"
	"fmt"
)

// IsSeen reports whether a document with this vendor and document
// number has been processed before.
func (s *SQLiteStorage) IsSeen(ctx context.Context, vendor, documentNumber string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return false, err
	}
	if err := validateString(documentNumber, "documentNumber"); err != nil {
		return false, err
	}
	return s.isSeenTx(ctx, s.db, vendor, documentNumber)
}

func (s *SQLiteStorage) isSeenTx(ctx context.Context, q queryable, vendor, documentNumber string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seen_documents
		WHERE vendor = ? AND document_number = ?
	`, vendor, documentNumber).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check seen documents: %w", err)
	}
	return count > 0, nil
}

// MarkSeen records that a document has been processed. Marking the
// same document twice is a no-op, so retries are safe.
func (s *SQLiteStorage) MarkSeen(ctx context.Context, vendor, documentNumber string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return err
	}
	if err := validateString(documentNumber, "documentNumber"); err != nil {
		return err
	}
	return s.markSeenTx(ctx, s.db, vendor, documentNumber)
}

func (s *SQLiteStorage) markSeenTx(ctx context.Context, q queryable, vendor, documentNumber string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO seen_documents (vendor, document_number, first_seen_at)
		VALUES (?, ?, ?)
	`, vendor, documentNumber, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark document as seen: %w", err)
	}
	return nil
}
