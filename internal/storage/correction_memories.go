package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldmend/fieldmend/internal/common"
	"github.com/fieldmend/fieldmend/internal/confidence"
	"github.com/fieldmend/fieldmend/internal/model"
)

const correctionMemoryColumns = `id, vendor, pattern, remediation, confidence,
	usage_count, reinforced_count, rejected_count, last_used_at, created_at, updated_at`

// globalVendor is the stored representation of a nil (globally
// applicable) vendor. Empty string rather than NULL so the table's
// UNIQUE constraint holds for global patterns too.
const globalVendor = ""

func vendorToColumn(vendor *string) string {
	if vendor == nil {
		return globalVendor
	}
	return *vendor
}

func columnToVendor(column string) *string {
	if column == globalVendor {
		return nil
	}
	return &column
}

// GetCorrectionMemory retrieves a correction pattern by its natural
// key. A nil vendor addresses the global entry. Returns nil without
// error when no entry exists.
func (s *SQLiteStorage) GetCorrectionMemory(ctx context.Context, vendor *string, pattern, remediation string) (*model.CorrectionMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateCorrectionKey(vendor, pattern, remediation); err != nil {
		return nil, err
	}
	return s.getCorrectionMemoryTx(ctx, s.db, vendor, pattern, remediation)
}

func (s *SQLiteStorage) getCorrectionMemoryTx(ctx context.Context, q queryable, vendor *string, pattern, remediation string) (*model.CorrectionMemory, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+correctionMemoryColumns+`
		FROM correction_memories
		WHERE vendor = ? AND pattern = ? AND remediation = ?
	`, vendorToColumn(vendor), pattern, remediation)

	memory, err := scanCorrectionMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not an error, just not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get correction memory: %w", err)
	}
	return memory, nil
}

// GetCorrectionMemories retrieves the vendor's patterns plus all
// global patterns, ordered by confidence descending then usage
// descending.
func (s *SQLiteStorage) GetCorrectionMemories(ctx context.Context, vendor string) ([]model.CorrectionMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return nil, err
	}
	return s.getCorrectionMemoriesTx(ctx, s.db, vendor)
}

func (s *SQLiteStorage) getCorrectionMemoriesTx(ctx context.Context, q queryable, vendor string) ([]model.CorrectionMemory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+correctionMemoryColumns+`
		FROM correction_memories
		WHERE vendor = ? OR vendor = ?
		ORDER BY confidence DESC, usage_count DESC
	`, vendor, globalVendor)
	if err != nil {
		return nil, fmt.Errorf("failed to query correction memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []model.CorrectionMemory
	for rows.Next() {
		memory, scanErr := scanCorrectionMemory(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan correction memory: %w", scanErr)
		}
		memories = append(memories, *memory)
	}

	return memories, rows.Err()
}

// UpsertCorrectionMemoryOnApproval records one human approval for a
// correction pattern, creating it at the initial confidence or
// reinforcing the existing entry atomically.
func (s *SQLiteStorage) UpsertCorrectionMemoryOnApproval(ctx context.Context, vendor *string, pattern, remediation string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCorrectionKey(vendor, pattern, remediation); err != nil {
		return err
	}
	return s.upsertCorrectionMemoryTx(ctx, s.db, vendor, pattern, remediation)
}

func (s *SQLiteStorage) upsertCorrectionMemoryTx(ctx context.Context, q queryable, vendor *string, pattern, remediation string) error {
	now := s.now().UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO correction_memories (
			vendor, pattern, remediation, confidence,
			usage_count, reinforced_count, rejected_count,
			last_used_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, 1, 0, ?, ?, ?)
		ON CONFLICT(vendor, pattern, remediation) DO UPDATE SET
			confidence = MIN(?, confidence + ?),
			reinforced_count = reinforced_count + 1,
			usage_count = usage_count + 1,
			last_used_at = excluded.last_used_at,
			updated_at = excluded.updated_at
	`, vendorToColumn(vendor), pattern, remediation, confidence.Initial,
		now, now, now,
		confidence.Max, confidence.Increment)

	if err != nil {
		return fmt.Errorf("failed to upsert correction memory: %w", err)
	}
	return nil
}

// RejectCorrectionMemory counts one human rejection. Confidence is
// left unchanged; only the rejection counter and updated_at move.
func (s *SQLiteStorage) RejectCorrectionMemory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.rejectCorrectionMemoryTx(ctx, s.db, id)
}

func (s *SQLiteStorage) rejectCorrectionMemoryTx(ctx context.Context, q queryable, id int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE correction_memories
		SET rejected_count = rejected_count + 1, updated_at = ?
		WHERE id = ?
	`, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reject correction memory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrMemoryNotFound
	}
	return nil
}

func scanCorrectionMemory(row scanner) (*model.CorrectionMemory, error) {
	var memory model.CorrectionMemory
	var vendor string
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&memory.ID,
		&vendor,
		&memory.Pattern,
		&memory.Remediation,
		&memory.Confidence,
		&memory.UsageCount,
		&memory.ReinforcedCount,
		&memory.RejectedCount,
		&lastUsedAt,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	memory.Vendor = columnToVendor(vendor)
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		memory.LastUsedAt = &t
	}
	return &memory, nil
}
