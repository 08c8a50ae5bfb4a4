package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fieldmend/fieldmend/internal/confidence"
	"github.com/fieldmend/fieldmend/internal/model"
	"github.com/fieldmend/fieldmend/internal/pattern"
)

// Relevance scoring weights. Relevance ranks memory against one
// document; it never filters. Low-relevance memory is still returned,
// ranked last, so Apply keeps full discretion.
const (
	vendorLabelWeight       = 0.7
	vendorConfidenceCap     = 0.3
	correctionKeywordWeight = 0.3
	correctionConfidenceCap = 0.2
	correctionReinforceStep = 0.05
	correctionReinforceCap  = 0.2
)

// Recall loads and ranks all potentially relevant memory for a
// document and determines its duplicate status. A duplicate still gets
// a full context so Decide can report it with complete information.
func (e *Engine) Recall(ctx context.Context, inv *model.Invoice) (*model.MemoryContext, error) {
	if err := inv.Validate(); err != nil {
		return nil, &RecallError{DocumentID: inv.ID, Err: err}
	}

	seen, err := e.storage.IsSeen(ctx, inv.Vendor, inv.Fields.InvoiceNumber)
	if err != nil {
		return nil, &RecallError{DocumentID: inv.ID, Err: err}
	}

	memCtx := &model.MemoryContext{IsDuplicate: seen}
	if seen {
		memCtx.DuplicateReason = fmt.Sprintf("document number %s from vendor %s was already processed",
			inv.Fields.InvoiceNumber, inv.Vendor)
	}

	vendorMems, err := e.storage.GetVendorMemories(ctx, inv.Vendor)
	if err != nil {
		return nil, &RecallError{DocumentID: inv.ID, Err: err}
	}
	correctionMems, err := e.storage.GetCorrectionMemories(ctx, inv.Vendor)
	if err != nil {
		return nil, &RecallError{DocumentID: inv.ID, Err: err}
	}

	now := e.now().UTC()
	rawLower := strings.ToLower(inv.RawText)

	for i := range vendorMems {
		vendorMems[i].RelevanceScore = scoreVendorMemory(&vendorMems[i], inv.RawText, now)
	}
	for i := range correctionMems {
		correctionMems[i].RelevanceScore = scoreCorrectionMemory(&correctionMems[i], rawLower, now)
	}

	sort.SliceStable(vendorMems, func(i, j int) bool {
		return vendorMems[i].RelevanceScore > vendorMems[j].RelevanceScore
	})
	sort.SliceStable(correctionMems, func(i, j int) bool {
		return correctionMems[i].RelevanceScore > correctionMems[j].RelevanceScore
	})

	memCtx.VendorMappings = vendorMems
	memCtx.Corrections = correctionMems

	slog.Debug("Recalled memory context",
		"document_id", inv.ID,
		"vendor", inv.Vendor,
		"vendor_mappings", len(vendorMems),
		"correction_patterns", len(correctionMems),
		"duplicate", seen)

	return memCtx, nil
}

// scoreVendorMemory rates a mapping high when its source label appears
// in the document text, with a capped contribution from its own live
// confidence.
func scoreVendorMemory(m *model.VendorMemory, rawText string, now time.Time) float64 {
	score := 0.0
	if pattern.ContainsLabel(rawText, m.SourceLabel) {
		score += vendorLabelWeight
	}
	live := confidence.ApplyDecay(m.Confidence, m.LastUsedAt, now)
	score += math.Min(live, vendorConfidenceCap)
	return score
}

// scoreCorrectionMemory rates a pattern by keyword hits in the document
// text, with capped contributions from live confidence and
// reinforcement count (diminishing returns).
func scoreCorrectionMemory(m *model.CorrectionMemory, rawLower string, now time.Time) float64 {
	score := correctionKeywordWeight * float64(pattern.CountKeywords(m.Pattern, rawLower))
	live := confidence.ApplyDecay(m.Confidence, m.LastUsedAt, now)
	score += math.Min(live, correctionConfidenceCap)
	score += math.Min(float64(m.ReinforcedCount)*correctionReinforceStep, correctionReinforceCap)
	return score
}
