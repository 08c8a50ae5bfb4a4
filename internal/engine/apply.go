package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/fieldmend/fieldmend/internal/confidence"
	"github.com/fieldmend/fieldmend/internal/model"
	"github.com/fieldmend/fieldmend/internal/pattern"
)

// currencyRecoveryConfidence is the fixed confidence of a currency code
// recovered from raw text. Low on purpose: a bounded-vocabulary scan is
// evidence, not memory.
const currencyRecoveryConfidence = 0.25

// patternTargetFields names the fields each known pattern corrects.
// The generic handler uses it to emit placeholders when a pattern is
// recalled but its specific handler cannot run.
var patternTargetFields = map[string][]string{
	model.PatternVATIncluded: {model.FieldNetTotal, model.FieldTaxTotal},
	model.PatternSkonto:      {model.FieldDiscountTerms},
	model.PatternFreightSKU:  {model.LineItemSKUField(0)},
}

// Apply proposes corrections for a document from the recalled context.
// The document is never mutated. Rules run in a fixed order; a later
// rule may supersede an earlier placeholder for the same field but
// duplicates stay in the output — Decide resolves them.
func (e *Engine) Apply(ctx context.Context, inv *model.Invoice, memCtx *model.MemoryContext) ([]model.ProposedCorrection, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, &ApplyError{DocumentID: inv.ID, Err: err}
	}
	if memCtx == nil {
		return nil, &ApplyError{DocumentID: inv.ID, Err: fmt.Errorf("nil memory context")}
	}

	now := e.now().UTC()
	var corrections []model.ProposedCorrection

	corrections = append(corrections, e.requiredFieldChecks(inv, memCtx)...)
	corrections = append(corrections, e.recoverCurrency(inv)...)
	corrections = append(corrections, e.applyVendorMappings(inv, memCtx, now)...)
	corrections = append(corrections, e.applyCorrectionPatterns(inv, memCtx, now)...)

	slog.Debug("Proposed corrections",
		"document_id", inv.ID,
		"vendor", inv.Vendor,
		"count", len(corrections))

	return corrections, nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("nil context")
	}
	return ctx.Err()
}

// requiredFieldChecks emits a zero-confidence placeholder for every
// configured required field that is absent and that no relevant vendor
// mapping can fill. Relevance means the mapping's source label actually
// appears in this document's text.
func (e *Engine) requiredFieldChecks(inv *model.Invoice, memCtx *model.MemoryContext) []model.ProposedCorrection {
	var corrections []model.ProposedCorrection

	for _, field := range e.config.RequiredFields {
		if !isAbsent(inv.Fields.Lookup(field)) {
			continue
		}
		if hasRelevantMapping(memCtx, field, inv.RawText) {
			continue
		}
		corrections = append(corrections, model.ProposedCorrection{
			Field:      field,
			From:       nil,
			To:         model.PlaceholderHumanValidation,
			Confidence: 0.0,
			Source:     model.SourceHeuristic,
			Reason:     fmt.Sprintf("required field %s is missing and no known vendor label can fill it", field),
			Vendor:     inv.Vendor,
		})
	}
	return corrections
}

func hasRelevantMapping(memCtx *model.MemoryContext, field, rawText string) bool {
	for i := range memCtx.VendorMappings {
		m := &memCtx.VendorMappings[i]
		if m.TargetField == field && pattern.ContainsLabel(rawText, m.SourceLabel) {
			return true
		}
	}
	return false
}

// recoverCurrency scans the raw text for a currency code when the
// currency field is absent.
func (e *Engine) recoverCurrency(inv *model.Invoice) []model.ProposedCorrection {
	if inv.Fields.Currency != nil {
		return nil
	}
	code, ok := pattern.ExtractCurrency(inv.RawText)
	if !ok {
		return nil
	}
	return []model.ProposedCorrection{{
		Field:      model.FieldCurrency,
		From:       nil,
		To:         code,
		Confidence: currencyRecoveryConfidence,
		Source:     model.SourceHeuristic,
		Reason:     fmt.Sprintf("currency code %s found in document text", code),
		Vendor:     inv.Vendor,
	}}
}

// applyVendorMappings extracts values for every relevant vendor mapping
// and proposes a correction when the extracted value fills or differs
// from the current field value.
func (e *Engine) applyVendorMappings(inv *model.Invoice, memCtx *model.MemoryContext, now time.Time) []model.ProposedCorrection {
	var corrections []model.ProposedCorrection

	for i := range memCtx.VendorMappings {
		m := &memCtx.VendorMappings[i]
		if !pattern.ContainsLabel(inv.RawText, m.SourceLabel) {
			continue
		}
		value, ok := pattern.ExtractLabeledValue(inv.RawText, m.SourceLabel)
		if !ok {
			continue
		}

		current := inv.Fields.Lookup(m.TargetField)
		if s, isString := current.(string); isString && s == value {
			continue
		}

		corrections = append(corrections, model.ProposedCorrection{
			Field:      m.TargetField,
			From:       current,
			To:         value,
			Confidence: confidence.ApplyDecay(m.Confidence, m.LastUsedAt, now),
			Source:     model.SourceVendorMemory,
			Reason:     fmt.Sprintf("label %q maps to %s for this vendor", m.SourceLabel, m.TargetField),
			Vendor:     inv.Vendor,
			MemoryKind: model.KindVendor,
			MemoryID:   m.ID,
			MemoryRef:  m.Key(),
		})
	}
	return corrections
}

// applyCorrectionPatterns dispatches every relevant recalled pattern to
// its handler. A pattern with no keyword hit in the text is skipped
// unless its keyword set is unknown, in which case the generic handler
// gets to describe the remediation.
func (e *Engine) applyCorrectionPatterns(inv *model.Invoice, memCtx *model.MemoryContext, now time.Time) []model.ProposedCorrection {
	var corrections []model.ProposedCorrection
	rawLower := strings.ToLower(inv.RawText)

	for i := range memCtx.Corrections {
		m := &memCtx.Corrections[i]
		known := len(pattern.Keywords(m.Pattern)) > 0
		if known && !pattern.AnyKeyword(m.Pattern, rawLower) {
			continue
		}

		live := confidence.ApplyDecay(m.Confidence, m.LastUsedAt, now)

		switch m.Pattern {
		case model.PatternVATIncluded:
			proposed, handled := e.applyIncludedTax(inv, m, live)
			if !handled {
				proposed = e.applyGeneric(inv, m, live)
			}
			corrections = append(corrections, proposed...)
		case model.PatternFreightSKU:
			corrections = append(corrections, e.applyFreightSKU(inv, m, live)...)
		case model.PatternSkonto:
			corrections = append(corrections, e.applyDiscountTerms(inv, m, live)...)
		default:
			corrections = append(corrections, e.applyGeneric(inv, m, live)...)
		}
	}
	return corrections
}

// applyIncludedTax recomputes tax and gross from net, or net and tax
// from gross when only the gross total is present. The second return is
// false when neither total exists and the generic handler should take
// over.
func (e *Engine) applyIncludedTax(inv *model.Invoice, m *model.CorrectionMemory, live float64) ([]model.ProposedCorrection, bool) {
	rate := e.config.DefaultTaxRate
	if inv.Fields.TaxRate != nil {
		rate = *inv.Fields.TaxRate
	}

	mk := func(field string, to float64) model.ProposedCorrection {
		return model.ProposedCorrection{
			Field:      field,
			From:       inv.Fields.Lookup(field),
			To:         to,
			Confidence: live,
			Source:     model.SourceCorrectionMemory,
			Reason:     fmt.Sprintf("prices include tax at rate %.2f; %s recomputed", rate, field),
			Vendor:     inv.Vendor,
			MemoryKind: model.KindCorrection,
			MemoryID:   m.ID,
			MemoryRef:  m.Pattern,
		}
	}

	switch {
	case inv.Fields.NetTotal != nil:
		tax := round2(*inv.Fields.NetTotal * rate)
		gross := round2(*inv.Fields.NetTotal + tax)
		return []model.ProposedCorrection{
			mk(model.FieldTaxTotal, tax),
			mk(model.FieldGrossTotal, gross),
		}, true
	case inv.Fields.GrossTotal != nil:
		net := round2(*inv.Fields.GrossTotal / (1 + rate))
		tax := round2(*inv.Fields.GrossTotal - net)
		return []model.ProposedCorrection{
			mk(model.FieldNetTotal, net),
			mk(model.FieldTaxTotal, tax),
		}, true
	}
	return nil, false
}

// applyFreightSKU remaps the first line item's SKU to the canonical
// freight code. Skipped entirely when the document has no line items.
func (e *Engine) applyFreightSKU(inv *model.Invoice, m *model.CorrectionMemory, live float64) []model.ProposedCorrection {
	if len(inv.Fields.LineItems) == 0 {
		return nil
	}
	item := inv.Fields.LineItems[0]
	if item.SKU != nil && *item.SKU == e.config.FreightSKU {
		return nil
	}

	field := model.LineItemSKUField(0)
	return []model.ProposedCorrection{{
		Field:      field,
		From:       inv.Fields.Lookup(field),
		To:         e.config.FreightSKU,
		Confidence: live,
		Source:     model.SourceCorrectionMemory,
		Reason:     fmt.Sprintf("freight line item mapped to canonical SKU %s", e.config.FreightSKU),
		Vendor:     inv.Vendor,
		MemoryKind: model.KindCorrection,
		MemoryID:   m.ID,
		MemoryRef:  m.Pattern,
	}}
}

// applyDiscountTerms extracts a discount clause from the raw text,
// falling back to the canonical remembered value when extraction fails.
// The fallback is what lets a reinforced pattern fire without fresh
// textual evidence.
func (e *Engine) applyDiscountTerms(inv *model.Invoice, m *model.CorrectionMemory, live float64) []model.ProposedCorrection {
	terms, ok := pattern.ExtractDiscountTerms(inv.RawText)
	reason := "discount clause extracted from document text"
	if !ok {
		terms = e.config.FallbackDiscountTerms
		reason = "discount clause not found in text; canonical remembered terms proposed"
	}

	if inv.Fields.DiscountTerms != nil && *inv.Fields.DiscountTerms == terms {
		return nil
	}

	return []model.ProposedCorrection{{
		Field:      model.FieldDiscountTerms,
		From:       inv.Fields.Lookup(model.FieldDiscountTerms),
		To:         terms,
		Confidence: live,
		Source:     model.SourceCorrectionMemory,
		Reason:     reason,
		Vendor:     inv.Vendor,
		MemoryKind: model.KindCorrection,
		MemoryID:   m.ID,
		MemoryRef:  m.Pattern,
	}}
}

// applyGeneric emits a human-validation placeholder for every field the
// pattern is known to correct, carrying the memory's remediation text
// in the reason.
func (e *Engine) applyGeneric(inv *model.Invoice, m *model.CorrectionMemory, live float64) []model.ProposedCorrection {
	fields := patternTargetFields[m.Pattern]
	if len(fields) == 0 {
		slog.Debug("No target fields known for pattern; skipping",
			"pattern", m.Pattern, "document_id", inv.ID)
		return nil
	}

	var corrections []model.ProposedCorrection
	for _, field := range fields {
		corrections = append(corrections, model.ProposedCorrection{
			Field:      field,
			From:       inv.Fields.Lookup(field),
			To:         model.PlaceholderHumanValidation,
			Confidence: live,
			Source:     model.SourceCorrectionMemory,
			Reason:     fmt.Sprintf("pattern %s applies: %s", m.Pattern, m.Remediation),
			Vendor:     inv.Vendor,
			MemoryKind: model.KindCorrection,
			MemoryID:   m.ID,
			MemoryRef:  m.Pattern,
		})
	}
	return corrections
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
