package storage

import (
	"context"
	"fmt"

	"github.com/fieldmend/fieldmend/internal/confidence"
	"github.com/fieldmend/fieldmend/internal/model"
)

// defaultCorrections are the correction patterns a fresh database
// starts with. They carry the lower seed confidence so learned
// patterns outrank them until a human has confirmed them.
var defaultCorrections = []struct {
	vendor      string
	pattern     string
	remediation string
}{
	{"Parts AG", model.PatternVATIncluded, model.RemediationRecomputeTax},
	{"Freight & Co", model.PatternFreightSKU, model.RemediationMapFreightSKU},
	{"Freight & Co", model.PatternSkonto, model.RemediationExtractDiscount},
}

// SeedDefaultCorrections inserts the default correction patterns.
// Patterns that already exist are left untouched, so seeding is safe
// to run repeatedly and never clobbers learned confidence.
func (s *SQLiteStorage) SeedDefaultCorrections(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.seedDefaultCorrectionsTx(ctx, s.db)
}

func (s *SQLiteStorage) seedDefaultCorrectionsTx(ctx context.Context, q queryable) error {
	now := s.now().UTC()

	for _, seed := range defaultCorrections {
		_, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO correction_memories (
				vendor, pattern, remediation, confidence,
				usage_count, reinforced_count, rejected_count,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?)
		`, seed.vendor, seed.pattern, seed.remediation, confidence.Seed, now, now)
		if err != nil {
			return fmt.Errorf("failed to seed correction %s/%s: %w", seed.vendor, seed.pattern, err)
		}
	}
	return nil
}
