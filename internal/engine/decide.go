package engine

import (
	"fmt"
	"log/slog"

	"github.com/fieldmend/fieldmend/internal/confidence"
	"github.com/fieldmend/fieldmend/internal/model"
)

// Decide classifies a document's outcome from its proposed corrections
// and recalled context. Pure function of its inputs; it has no failure
// modes and touches no storage. One document produces exactly one
// decision per pipeline run.
func (e *Engine) Decide(vendor, documentNumber string, corrections []model.ProposedCorrection, memCtx *model.MemoryContext) model.Decision {
	decision := e.decide(corrections, memCtx)

	slog.Info("Decision",
		"vendor", vendor,
		"document_number", documentNumber,
		"outcome", decision.Outcome,
		"confidence", decision.ConfidenceScore,
		"corrections", len(corrections))

	return decision
}

func (e *Engine) decide(corrections []model.ProposedCorrection, memCtx *model.MemoryContext) model.Decision {
	// Duplicate detection overrides everything, no matter how confident
	// any correction is.
	if memCtx != nil && memCtx.IsDuplicate {
		reason := memCtx.DuplicateReason
		if reason == "" {
			reason = "document was already processed"
		}
		return model.Decision{
			Outcome:             model.Escalate,
			RequiresHumanReview: true,
			ConfidenceScore:     0.0,
			Reasoning:           reason,
		}
	}

	if len(corrections) == 0 {
		return model.Decision{
			Outcome:             model.AutoAccept,
			RequiresHumanReview: false,
			ConfidenceScore:     1.0,
			Reasoning:           "no corrections proposed; document accepted as extracted",
		}
	}

	top := &corrections[0]
	for i := 1; i < len(corrections); i++ {
		if corrections[i].Confidence > top.Confidence {
			top = &corrections[i]
		}
	}

	reinforced := resolveReinforcedCount(top, memCtx)
	if confidence.ShouldAutoApply(top.Confidence, reinforced) {
		return model.Decision{
			Outcome:             model.AutoCorrect,
			RequiresHumanReview: false,
			ConfidenceScore:     top.Confidence,
			Reasoning: fmt.Sprintf("correction of %s at confidence %.2f with %d reinforcements clears the auto-apply gate",
				top.Field, top.Confidence, reinforced),
		}
	}

	return model.Decision{
		Outcome:             model.Escalate,
		RequiresHumanReview: true,
		ConfidenceScore:     top.Confidence,
		Reasoning: fmt.Sprintf("correction of %s at confidence %.2f with %d reinforcements requires human review",
			top.Field, top.Confidence, reinforced),
	}
}

// resolveReinforcedCount cross-references a correction's traceability
// fields against the recalled context. Heuristic corrections carry no
// memory and resolve to zero, which can never clear the gate.
func resolveReinforcedCount(c *model.ProposedCorrection, memCtx *model.MemoryContext) int {
	if memCtx == nil || c.MemoryID == 0 {
		return 0
	}
	switch c.MemoryKind {
	case model.KindVendor:
		for i := range memCtx.VendorMappings {
			if memCtx.VendorMappings[i].ID == c.MemoryID {
				return memCtx.VendorMappings[i].ReinforcedCount
			}
		}
	case model.KindCorrection:
		for i := range memCtx.Corrections {
			if memCtx.Corrections[i].ID == c.MemoryID {
				return memCtx.Corrections[i].ReinforcedCount
			}
		}
	}
	return 0
}
