package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fieldmend/fieldmend/internal/model"
	"github.com/fieldmend/fieldmend/internal/pattern"
	"github.com/fieldmend/fieldmend/internal/service"
)

// Confidence deltas recorded in the resolution log. Audit bookkeeping
// only; actual confidence movement happens in the repositories.
const (
	approvedConfidenceDelta = 0.1
	rejectedConfidenceDelta = -0.2
)

// Learn folds a human decision back into memory. Rejections only write
// audit records. Approvals write audit records, upsert the recognized
// vendor mappings and inferred correction patterns, and finally mark
// the document seen — all within one transaction, with the seen mark
// last so a failed learn stays retryable.
func (e *Engine) Learn(ctx context.Context, inv *model.Invoice, feedback *model.HumanCorrectionLog) error {
	if err := inv.Validate(); err != nil {
		return &LearnError{DocumentID: inv.ID, Err: err}
	}
	if err := feedback.Validate(); err != nil {
		return &LearnError{DocumentID: inv.ID, Err: err}
	}

	if feedback.FinalDecision == model.DecisionRejected {
		return e.learnRejected(ctx, inv, feedback)
	}
	return e.learnApproved(ctx, inv, feedback)
}

// learnRejected writes one audit record per corrected field and leaves
// memory untouched.
func (e *Engine) learnRejected(ctx context.Context, inv *model.Invoice, feedback *model.HumanCorrectionLog) error {
	rawLower := strings.ToLower(inv.RawText)

	for _, c := range feedback.Corrections {
		kind, ref := classifyCorrection(c, inv.RawText, rawLower)
		record := &model.ResolutionRecord{
			DocumentID:      inv.ID,
			Vendor:          inv.Vendor,
			MemoryKind:      kind,
			MemoryRef:       ref,
			Approved:        false,
			ConfidenceDelta: rejectedConfidenceDelta,
		}
		if err := e.storage.AppendResolution(ctx, record); err != nil {
			return &LearnError{DocumentID: inv.ID, Err: err}
		}
	}

	slog.Info("Recorded rejection",
		"document_id", inv.ID,
		"vendor", inv.Vendor,
		"corrections", len(feedback.Corrections))
	return nil
}

func (e *Engine) learnApproved(ctx context.Context, inv *model.Invoice, feedback *model.HumanCorrectionLog) error {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return &LearnError{DocumentID: inv.ID, Err: err}
	}

	// Hard block: a document already marked seen must not reinforce
	// memory again with the same evidence. The check runs on the
	// transaction's own snapshot, so two learns racing on one document
	// cannot both observe unseen: the loser either sees the committed
	// mark or fails busy and retries into this skip.
	seen, err := tx.IsSeen(ctx, inv.Vendor, inv.Fields.InvoiceNumber)
	if err != nil {
		_ = tx.Rollback()
		return &LearnError{DocumentID: inv.ID, Err: err}
	}
	if seen {
		_ = tx.Rollback()
		slog.Info("Skipping learn for already-seen document",
			"document_id", inv.ID,
			"vendor", inv.Vendor,
			"document_number", inv.Fields.InvoiceNumber)
		return nil
	}

	if err := e.applyFeedback(ctx, tx, inv, feedback); err != nil {
		_ = tx.Rollback()
		return &LearnError{DocumentID: inv.ID, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &LearnError{DocumentID: inv.ID, Err: err}
	}

	slog.Info("Learned from approval",
		"document_id", inv.ID,
		"vendor", inv.Vendor,
		"corrections", len(feedback.Corrections))
	return nil
}

func (e *Engine) applyFeedback(ctx context.Context, tx service.Transaction, inv *model.Invoice, feedback *model.HumanCorrectionLog) error {
	rawLower := strings.ToLower(inv.RawText)

	for _, c := range feedback.Corrections {
		kind, ref := classifyCorrection(c, inv.RawText, rawLower)
		record := &model.ResolutionRecord{
			DocumentID:      inv.ID,
			Vendor:          inv.Vendor,
			MemoryKind:      kind,
			MemoryRef:       ref,
			Approved:        true,
			ConfidenceDelta: approvedConfidenceDelta,
		}
		if err := tx.AppendResolution(ctx, record); err != nil {
			return err
		}
	}

	// Vendor-label mappings: learned only when the source label is
	// discoverable verbatim in the document text or the reviewer's
	// reason. One reinforcement per natural key per learn.
	learned := make(map[string]bool)
	for _, c := range feedback.Corrections {
		label, ok := pattern.DiscoverSourceLabel(c.Field, inv.RawText, c.Reason)
		if !ok {
			continue
		}
		key := label + "->" + c.Field
		if learned[key] {
			continue
		}
		learned[key] = true
		if err := tx.UpsertVendorMemoryOnApproval(ctx, inv.Vendor, label, c.Field); err != nil {
			return err
		}
		slog.Debug("Learned vendor mapping",
			"vendor", inv.Vendor, "source_label", label, "target_field", c.Field)
	}

	for _, inf := range inferPatterns(feedback.Corrections, rawLower) {
		if err := tx.UpsertCorrectionMemoryOnApproval(ctx, &inv.Vendor, inf.pattern, inf.remediation); err != nil {
			return err
		}
		slog.Debug("Learned correction pattern",
			"vendor", inv.Vendor, "pattern", inf.pattern)
	}

	// The seen mark is last: if any earlier write fails, the document
	// stays eligible for a retried learn, and all earlier writes are
	// idempotent under that retry.
	return tx.MarkSeen(ctx, inv.Vendor, inv.Fields.InvoiceNumber)
}

// classifyCorrection attributes a human correction to the memory kind
// it speaks about, for the audit record.
func classifyCorrection(c model.HumanCorrection, rawText, rawLower string) (model.MemoryKind, string) {
	if label, ok := pattern.DiscoverSourceLabel(c.Field, rawText, c.Reason); ok {
		return model.KindVendor, label + "->" + c.Field
	}
	if p, ok := inferPatternForField(c.Field, rawLower); ok {
		return model.KindCorrection, p
	}
	return model.KindCorrection, c.Field
}

type inferredPattern struct {
	pattern     string
	remediation string
}

// inferPatterns derives correction-pattern signals from which fields
// the reviewer touched combined with keyword evidence in the raw text.
// Declarative signals only; never a vendor or document identifier.
func inferPatterns(corrections []model.HumanCorrection, rawLower string) []inferredPattern {
	seen := make(map[string]bool)
	var inferred []inferredPattern

	for _, c := range corrections {
		p, ok := inferPatternForField(c.Field, rawLower)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		inferred = append(inferred, inferredPattern{pattern: p, remediation: patternRemediation(p)})
	}
	return inferred
}

func inferPatternForField(field, rawLower string) (string, bool) {
	switch field {
	case model.FieldNetTotal, model.FieldTaxTotal, model.FieldGrossTotal:
		if pattern.AnyKeyword(model.PatternVATIncluded, rawLower) {
			return model.PatternVATIncluded, true
		}
	case model.FieldDiscountTerms:
		if pattern.AnyKeyword(model.PatternSkonto, rawLower) {
			return model.PatternSkonto, true
		}
	default:
		if _, ok := model.LineItemSKUIndex(field); ok {
			if pattern.AnyKeyword(model.PatternFreightSKU, rawLower) {
				return model.PatternFreightSKU, true
			}
		}
	}
	return "", false
}

func patternRemediation(p string) string {
	switch p {
	case model.PatternVATIncluded:
		return model.RemediationRecomputeTax
	case model.PatternSkonto:
		return model.RemediationExtractDiscount
	case model.PatternFreightSKU:
		return model.RemediationMapFreightSKU
	}
	return ""
}
