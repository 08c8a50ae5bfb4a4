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

const vendorMemoryColumns = `id, vendor, source_label, target_field, confidence,
	usage_count, reinforced_count, rejected_count, last_used_at, created_at, updated_at`

// GetVendorMemory retrieves a vendor mapping by its natural key.
// Returns nil without error when no mapping exists.
func (s *SQLiteStorage) GetVendorMemory(ctx context.Context, vendor, sourceLabel, targetField string) (*model.VendorMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateVendorKey(vendor, sourceLabel, targetField); err != nil {
		return nil, err
	}
	return s.getVendorMemoryTx(ctx, s.db, vendor, sourceLabel, targetField)
}

func (s *SQLiteStorage) getVendorMemoryTx(ctx context.Context, q queryable, vendor, sourceLabel, targetField string) (*model.VendorMemory, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+vendorMemoryColumns+`
		FROM vendor_memories
		WHERE vendor = ? AND source_label = ? AND target_field = ?
	`, vendor, sourceLabel, targetField)

	memory, err := scanVendorMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not an error, just not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor memory: %w", err)
	}
	return memory, nil
}

// GetVendorMemories retrieves all mappings for a vendor, ordered by
// confidence descending then usage descending.
func (s *SQLiteStorage) GetVendorMemories(ctx context.Context, vendor string) ([]model.VendorMemory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vendor, "vendor"); err != nil {
		return nil, err
	}
	return s.getVendorMemoriesTx(ctx, s.db, vendor)
}

func (s *SQLiteStorage) getVendorMemoriesTx(ctx context.Context, q queryable, vendor string) ([]model.VendorMemory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+vendorMemoryColumns+`
		FROM vendor_memories
		WHERE vendor = ?
		ORDER BY confidence DESC, usage_count DESC
	`, vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []model.VendorMemory
	for rows.Next() {
		memory, scanErr := scanVendorMemory(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan vendor memory: %w", scanErr)
		}
		memories = append(memories, *memory)
	}

	return memories, rows.Err()
}

// UpsertVendorMemoryOnApproval records one human approval for a vendor
// mapping. A new mapping starts at the initial confidence with a single
// reinforcement; an existing one is reinforced. The whole operation is
// a single atomic statement so concurrent approvals for the same key
// cannot lose a reinforcement.
func (s *SQLiteStorage) UpsertVendorMemoryOnApproval(ctx context.Context, vendor, sourceLabel, targetField string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVendorKey(vendor, sourceLabel, targetField); err != nil {
		return err
	}
	return s.upsertVendorMemoryTx(ctx, s.db, vendor, sourceLabel, targetField)
}

func (s *SQLiteStorage) upsertVendorMemoryTx(ctx context.Context, q queryable, vendor, sourceLabel, targetField string) error {
	now := s.now().UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO vendor_memories (
			vendor, source_label, target_field, confidence,
			usage_count, reinforced_count, rejected_count,
			last_used_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, 1, 0, ?, ?, ?)
		ON CONFLICT(vendor, source_label, target_field) DO UPDATE SET
			confidence = MIN(?, confidence + ?),
			reinforced_count = reinforced_count + 1,
			usage_count = usage_count + 1,
			last_used_at = excluded.last_used_at,
			updated_at = excluded.updated_at
	`, vendor, sourceLabel, targetField, confidence.Initial,
		now, now, now,
		confidence.Max, confidence.Increment)

	if err != nil {
		return fmt.Errorf("failed to upsert vendor memory: %w", err)
	}
	return nil
}

// RejectVendorMemory counts one human rejection. Confidence is left
// unchanged; only the rejection counter and updated_at move.
func (s *SQLiteStorage) RejectVendorMemory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.rejectVendorMemoryTx(ctx, s.db, id)
}

func (s *SQLiteStorage) rejectVendorMemoryTx(ctx context.Context, q queryable, id int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE vendor_memories
		SET rejected_count = rejected_count + 1, updated_at = ?
		WHERE id = ?
	`, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reject vendor memory: %w", err)
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

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVendorMemory(row scanner) (*model.VendorMemory, error) {
	var memory model.VendorMemory
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&memory.ID,
		&memory.Vendor,
		&memory.SourceLabel,
		&memory.TargetField,
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

	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		memory.LastUsedAt = &t
	}
	return &memory, nil
}
