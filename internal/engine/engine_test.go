package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmend/fieldmend/internal/confidence"
	"github.com/fieldmend/fieldmend/internal/model"
)

func strPtr(s string) *string { return &s }
func fPtr(f float64) *float64 { return &f }

func baseInvoice() *model.Invoice {
	return &model.Invoice{
		ID:     "INV-1001",
		Vendor: "Parts AG",
		Fields: model.InvoiceFields{
			InvoiceNumber: "2024-001",
			InvoiceDate:   "2024-01-15",
			ServiceDate:   strPtr("2024-01-10"),
			Currency:      strPtr("EUR"),
		},
		Confidence: 0.9,
		RawText:    "Rechnung 2024-001",
	}
}

func TestRecallRanksRelevantMappingFirst(t *testing.T) {
	storage := newMockStorage()
	storage.addVendorMemory(model.VendorMemory{
		Vendor: "Parts AG", SourceLabel: "Bestellnummer", TargetField: model.FieldPONumber,
		Confidence: 0.5, ReinforcedCount: 3,
	})
	storage.addVendorMemory(model.VendorMemory{
		Vendor: "Parts AG", SourceLabel: "Leistungsdatum", TargetField: model.FieldServiceDate,
		Confidence: 0.4, ReinforcedCount: 2,
	})

	inv := baseInvoice()
	inv.RawText = "Leistungsdatum: 10.01.2024"

	memCtx, err := New(storage).Recall(context.Background(), inv)
	require.NoError(t, err)
	require.Len(t, memCtx.VendorMappings, 2)

	// The mapping whose label appears in the text outranks the one
	// with higher confidence but no textual evidence.
	assert.Equal(t, "Leistungsdatum", memCtx.VendorMappings[0].SourceLabel)
	assert.Greater(t, memCtx.VendorMappings[0].RelevanceScore, memCtx.VendorMappings[1].RelevanceScore)
	assert.False(t, memCtx.IsDuplicate)
}

func TestRecallNeverFiltersCandidates(t *testing.T) {
	storage := newMockStorage()
	storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Parts AG"), Pattern: model.PatternVATIncluded,
		Remediation: model.RemediationRecomputeTax, Confidence: 0.2,
	})

	inv := baseInvoice()
	inv.RawText = "nothing relevant here"

	memCtx, err := New(storage).Recall(context.Background(), inv)
	require.NoError(t, err)
	// Low relevance, still returned.
	assert.Len(t, memCtx.Corrections, 1)
}

func TestRecallDuplicate(t *testing.T) {
	storage := newMockStorage()
	ctx := context.Background()
	require.NoError(t, storage.MarkSeen(ctx, "Parts AG", "2024-001"))

	memCtx, err := New(storage).Recall(ctx, baseInvoice())
	require.NoError(t, err)
	assert.True(t, memCtx.IsDuplicate)
	assert.Contains(t, memCtx.DuplicateReason, "2024-001")
	assert.Contains(t, memCtx.DuplicateReason, "Parts AG")
}

func TestRecallStorageFailure(t *testing.T) {
	storage := newMockStorage()
	storage.failReads = true

	_, err := New(storage).Recall(context.Background(), baseInvoice())
	require.Error(t, err)

	var recallErr *RecallError
	require.ErrorAs(t, err, &recallErr)
	assert.Equal(t, "INV-1001", recallErr.DocumentID)
}

func TestApplyIncludedTaxFromNet(t *testing.T) {
	storage := newMockStorage()
	mem := storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Parts AG"), Pattern: model.PatternVATIncluded,
		Remediation: model.RemediationRecomputeTax, Confidence: confidence.Seed,
	})

	inv := baseInvoice()
	inv.Fields.NetTotal = fPtr(100)
	inv.Fields.TaxRate = fPtr(0.19)
	inv.RawText = "Alle Preise inkl. MwSt."

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	require.Len(t, corrections, 2)
	assert.Equal(t, model.FieldTaxTotal, corrections[0].Field)
	assert.InDelta(t, 19.00, corrections[0].To, 0.001)
	assert.Equal(t, model.FieldGrossTotal, corrections[1].Field)
	assert.InDelta(t, 119.00, corrections[1].To, 0.001)

	for _, c := range corrections {
		assert.Equal(t, model.SourceCorrectionMemory, c.Source)
		assert.Equal(t, model.KindCorrection, c.MemoryKind)
		assert.Equal(t, mem.ID, c.MemoryID)
		assert.Equal(t, model.PatternVATIncluded, c.MemoryRef)
	}
}

func TestApplyIncludedTaxFromGross(t *testing.T) {
	storage := newMockStorage()
	storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Parts AG"), Pattern: model.PatternVATIncluded,
		Remediation: model.RemediationRecomputeTax, Confidence: confidence.Seed,
	})

	inv := baseInvoice()
	inv.Fields.GrossTotal = fPtr(119.00)
	inv.Fields.TaxRate = fPtr(0.19)
	inv.RawText = "Preise inkl. MwSt."

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	require.Len(t, corrections, 2)
	assert.Equal(t, model.FieldNetTotal, corrections[0].Field)
	assert.InDelta(t, 100.00, corrections[0].To, 0.001)
	assert.Equal(t, model.FieldTaxTotal, corrections[1].Field)
	assert.InDelta(t, 19.00, corrections[1].To, 0.001)
}

func TestApplyIncludedTaxWithoutTotalsFallsThrough(t *testing.T) {
	storage := newMockStorage()
	storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Parts AG"), Pattern: model.PatternVATIncluded,
		Remediation: model.RemediationRecomputeTax, Confidence: confidence.Seed,
	})

	inv := baseInvoice()
	inv.RawText = "Preise inkl. MwSt."

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	// Neither total is present, so the generic handler emits
	// placeholders for the pattern's target fields.
	require.Len(t, corrections, 2)
	assert.Equal(t, model.FieldNetTotal, corrections[0].Field)
	assert.Equal(t, model.FieldTaxTotal, corrections[1].Field)
	for _, c := range corrections {
		assert.Equal(t, model.PlaceholderHumanValidation, c.To)
		assert.Contains(t, c.Reason, model.RemediationRecomputeTax)
	}
}

func TestApplyRequiredFieldPlaceholder(t *testing.T) {
	storage := newMockStorage()

	inv := baseInvoice()
	inv.Fields.ServiceDate = nil

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	require.Len(t, corrections, 1)
	assert.Equal(t, model.FieldServiceDate, corrections[0].Field)
	assert.Equal(t, model.PlaceholderHumanValidation, corrections[0].To)
	assert.Zero(t, corrections[0].Confidence)
	assert.Equal(t, model.SourceHeuristic, corrections[0].Source)
}

func TestApplyRequiredFieldCoveredByMapping(t *testing.T) {
	storage := newMockStorage()
	storage.addVendorMemory(model.VendorMemory{
		Vendor: "Parts AG", SourceLabel: "Leistungsdatum", TargetField: model.FieldServiceDate,
		Confidence: 0.5, ReinforcedCount: 2,
	})

	inv := baseInvoice()
	inv.Fields.ServiceDate = nil
	inv.RawText = "Leistungsdatum: 10.01.2024"

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	// The relevant mapping supersedes the placeholder entirely and
	// extracts the renormalized date.
	require.Len(t, corrections, 1)
	assert.Equal(t, model.FieldServiceDate, corrections[0].Field)
	assert.Equal(t, "2024-01-10", corrections[0].To)
	assert.Equal(t, model.SourceVendorMemory, corrections[0].Source)
	assert.Equal(t, "Leistungsdatum->serviceDate", corrections[0].MemoryRef)
}

func TestApplyCurrencyRecovery(t *testing.T) {
	storage := newMockStorage()

	inv := baseInvoice()
	inv.Fields.Currency = nil
	inv.RawText = "Gesamtbetrag 119,00 EUR"

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	require.Len(t, corrections, 1)
	assert.Equal(t, model.FieldCurrency, corrections[0].Field)
	assert.Equal(t, "EUR", corrections[0].To)
	assert.InDelta(t, 0.25, corrections[0].Confidence, 0.001)
}

func TestApplyFreightSKU(t *testing.T) {
	storage := newMockStorage()
	storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Freight & Co"), Pattern: model.PatternFreightSKU,
		Remediation: model.RemediationMapFreightSKU, Confidence: confidence.Seed,
	})

	inv := baseInvoice()
	inv.Vendor = "Freight & Co"
	inv.Fields.LineItems = []model.LineItem{
		{SKU: strPtr("MISC-01"), Description: "Seefracht Container", Qty: 1, UnitPrice: 450},
	}
	inv.RawText = "Seefracht Hamburg - Mumbai"

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	require.Len(t, corrections, 1)
	assert.Equal(t, "lineItems[0].sku", corrections[0].Field)
	assert.Equal(t, "MISC-01", corrections[0].From)
	assert.Equal(t, "FREIGHT", corrections[0].To)
}

func TestApplyFreightSKUSkipsWithoutLineItems(t *testing.T) {
	storage := newMockStorage()
	storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Freight & Co"), Pattern: model.PatternFreightSKU,
		Remediation: model.RemediationMapFreightSKU, Confidence: confidence.Seed,
	})

	inv := baseInvoice()
	inv.Vendor = "Freight & Co"
	inv.RawText = "Seefracht Hamburg - Mumbai"

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestApplyDiscountTermsExtraction(t *testing.T) {
	storage := newMockStorage()
	storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Freight & Co"), Pattern: model.PatternSkonto,
		Remediation: model.RemediationExtractDiscount, Confidence: confidence.Seed,
	})

	inv := baseInvoice()
	inv.Vendor = "Freight & Co"
	inv.RawText = "Zahlbar mit 3% Skonto innerhalb von 14 Tagen."

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	require.Len(t, corrections, 1)
	assert.Equal(t, model.FieldDiscountTerms, corrections[0].Field)
	assert.Equal(t, "3% Skonto innerhalb von 14 Tagen", corrections[0].To)
}

func TestApplyDiscountTermsFallback(t *testing.T) {
	storage := newMockStorage()
	storage.addCorrectionMemory(model.CorrectionMemory{
		Vendor: strPtr("Freight & Co"), Pattern: model.PatternSkonto,
		Remediation: model.RemediationExtractDiscount, Confidence: 0.8, ReinforcedCount: 3,
	})

	inv := baseInvoice()
	inv.Vendor = "Freight & Co"
	// Keyword evidence without an extractable clause.
	inv.RawText = "Discount terms as usual, payment within the agreed period."

	engine := New(storage)
	memCtx, err := engine.Recall(context.Background(), inv)
	require.NoError(t, err)
	corrections, err := engine.Apply(context.Background(), inv, memCtx)
	require.NoError(t, err)

	require.Len(t, corrections, 1)
	assert.Equal(t, "2% Skonto within 10 days", corrections[0].To)
	assert.Contains(t, corrections[0].Reason, "canonical")
}

func TestDecideDuplicatePrecedence(t *testing.T) {
	engine := New(newMockStorage())

	corrections := []model.ProposedCorrection{{
		Field: model.FieldTaxTotal, To: 19.0, Confidence: 0.95,
		MemoryKind: model.KindCorrection, MemoryID: 1,
	}}
	memCtx := &model.MemoryContext{IsDuplicate: true, DuplicateReason: "already processed"}

	decision := engine.Decide("Parts AG", "2024-001", corrections, memCtx)
	assert.Equal(t, model.Escalate, decision.Outcome)
	assert.True(t, decision.RequiresHumanReview)
	assert.Zero(t, decision.ConfidenceScore)
}

func TestDecideAutoAcceptWithoutCorrections(t *testing.T) {
	engine := New(newMockStorage())

	decision := engine.Decide("Parts AG", "2024-001", nil, &model.MemoryContext{})
	assert.Equal(t, model.AutoAccept, decision.Outcome)
	assert.False(t, decision.RequiresHumanReview)
	assert.Equal(t, 1.0, decision.ConfidenceScore)
}

func TestDecideAutoApplyGate(t *testing.T) {
	engine := New(newMockStorage())

	memCtx := &model.MemoryContext{
		Corrections: []model.CorrectionMemory{
			{ID: 7, Pattern: model.PatternVATIncluded, Confidence: 0.8, ReinforcedCount: 3},
			{ID: 8, Pattern: model.PatternSkonto, Confidence: 0.8, ReinforcedCount: 1},
		},
	}

	trusted := []model.ProposedCorrection{{
		Field: model.FieldTaxTotal, To: 19.0, Confidence: 0.8,
		MemoryKind: model.KindCorrection, MemoryID: 7,
	}}
	decision := engine.Decide("Parts AG", "2024-001", trusted, memCtx)
	assert.Equal(t, model.AutoCorrect, decision.Outcome)
	assert.False(t, decision.RequiresHumanReview)
	assert.Equal(t, 0.8, decision.ConfidenceScore)

	// Same confidence, too few reinforcements.
	unproven := []model.ProposedCorrection{{
		Field: model.FieldDiscountTerms, To: "2% Skonto", Confidence: 0.8,
		MemoryKind: model.KindCorrection, MemoryID: 8,
	}}
	decision = engine.Decide("Parts AG", "2024-001", unproven, memCtx)
	assert.Equal(t, model.Escalate, decision.Outcome)
	assert.True(t, decision.RequiresHumanReview)
}

func TestDecideHeuristicNeverAutoApplies(t *testing.T) {
	engine := New(newMockStorage())

	corrections := []model.ProposedCorrection{{
		Field: model.FieldCurrency, To: "EUR", Confidence: 0.9,
		Source: model.SourceHeuristic,
	}}
	decision := engine.Decide("Parts AG", "2024-001", corrections, &model.MemoryContext{})
	assert.Equal(t, model.Escalate, decision.Outcome)
}

func TestLearnApprovedCreatesVendorMemory(t *testing.T) {
	storage := newMockStorage()
	ctx := context.Background()

	inv := baseInvoice()
	inv.RawText = "Leistungsdatum: 10.01.2024"

	feedback := &model.HumanCorrectionLog{
		DocumentID: inv.ID,
		Vendor:     inv.Vendor,
		Corrections: []model.HumanCorrection{
			{Field: model.FieldServiceDate, From: nil, To: "2024-01-10", Reason: "date under Leistungsdatum"},
		},
		FinalDecision: model.DecisionApproved,
	}

	require.NoError(t, New(storage).Learn(ctx, inv, feedback))

	mem, err := storage.GetVendorMemory(ctx, "Parts AG", "Leistungsdatum", model.FieldServiceDate)
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.InDelta(t, confidence.Initial, mem.Confidence, 0.001)
	assert.Equal(t, 1, mem.ReinforcedCount)

	records, err := storage.GetResolutions(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Approved)
	assert.InDelta(t, 0.1, records[0].ConfidenceDelta, 0.001)
	assert.Equal(t, model.KindVendor, records[0].MemoryKind)

	seen, err := storage.IsSeen(ctx, "Parts AG", "2024-001")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestLearnReinforcementMonotonicity(t *testing.T) {
	storage := newMockStorage()
	ctx := context.Background()
	engine := New(storage)

	for i, docNum := range []string{"2024-001", "2024-002"} {
		inv := baseInvoice()
		inv.ID = docNum
		inv.Fields.InvoiceNumber = docNum
		inv.RawText = "Alle Preise inkl. MwSt."

		feedback := &model.HumanCorrectionLog{
			DocumentID: inv.ID,
			Vendor:     inv.Vendor,
			Corrections: []model.HumanCorrection{
				{Field: model.FieldTaxTotal, From: nil, To: 19.0, Reason: "tax included in prices"},
			},
			FinalDecision: model.DecisionApproved,
		}
		require.NoError(t, engine.Learn(ctx, inv, feedback))

		mem, err := storage.GetCorrectionMemory(ctx, strPtr("Parts AG"), model.PatternVATIncluded, model.RemediationRecomputeTax)
		require.NoError(t, err)
		require.NotNil(t, mem)
		assert.Equal(t, i+1, mem.ReinforcedCount)
	}
}

func TestLearnRejectedMakesNoMemoryMutation(t *testing.T) {
	storage := newMockStorage()
	ctx := context.Background()

	inv := baseInvoice()
	inv.RawText = "Alle Preise inkl. MwSt."

	feedback := &model.HumanCorrectionLog{
		DocumentID: inv.ID,
		Vendor:     inv.Vendor,
		Corrections: []model.HumanCorrection{
			{Field: model.FieldTaxTotal, From: nil, To: 19.0, Reason: "wrong"},
			{Field: model.FieldGrossTotal, From: nil, To: 119.0, Reason: "wrong"},
		},
		FinalDecision: model.DecisionRejected,
	}

	require.NoError(t, New(storage).Learn(ctx, inv, feedback))

	assert.Empty(t, storage.correctionMemories)
	assert.Empty(t, storage.vendorMemories)

	records, err := storage.GetResolutions(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.False(t, r.Approved)
		assert.InDelta(t, -0.2, r.ConfidenceDelta, 0.001)
	}

	// Rejection does not mark the document seen.
	seen, err := storage.IsSeen(ctx, "Parts AG", "2024-001")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLearnDuplicateHardBlock(t *testing.T) {
	storage := newMockStorage()
	ctx := context.Background()
	require.NoError(t, storage.MarkSeen(ctx, "Parts AG", "2024-001"))

	inv := baseInvoice()
	inv.RawText = "Alle Preise inkl. MwSt."

	feedback := &model.HumanCorrectionLog{
		DocumentID: inv.ID,
		Vendor:     inv.Vendor,
		Corrections: []model.HumanCorrection{
			{Field: model.FieldTaxTotal, From: nil, To: 19.0, Reason: "tax included"},
		},
		FinalDecision: model.DecisionApproved,
	}

	require.NoError(t, New(storage).Learn(ctx, inv, feedback))

	// No writes of any kind past the guard.
	assert.Empty(t, storage.correctionMemories)
	assert.Empty(t, storage.resolutions)
}

func TestLearnConcurrentSameDocument(t *testing.T) {
	storage := newGatedStorage(2)
	ctx := context.Background()
	engine := New(storage)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv := baseInvoice()
			inv.RawText = "Alle Preise inkl. MwSt."
			feedback := &model.HumanCorrectionLog{
				DocumentID: inv.ID,
				Vendor:     inv.Vendor,
				Corrections: []model.HumanCorrection{
					{Field: model.FieldTaxTotal, From: nil, To: 19.0, Reason: "tax included"},
				},
				FinalDecision: model.DecisionApproved,
			}
			errs[i] = engine.Learn(ctx, inv, feedback)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "learn %d", i)
	}

	// Exactly one learn wins; the other observes the mark inside its
	// own transaction and skips every write.
	mem, err := storage.GetCorrectionMemory(ctx, strPtr("Parts AG"), model.PatternVATIncluded, model.RemediationRecomputeTax)
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.Equal(t, 1, mem.ReinforcedCount)

	records, err := storage.GetResolutions(ctx, "INV-1001")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLearnInvalidFeedback(t *testing.T) {
	engine := New(newMockStorage())

	err := engine.Learn(context.Background(), baseInvoice(), &model.HumanCorrectionLog{
		FinalDecision: "maybe",
	})
	require.Error(t, err)

	var learnErr *LearnError
	require.ErrorAs(t, err, &learnErr)
	assert.ErrorIs(t, err, model.ErrInvalidFeedback)
}

func TestConfigDefaults(t *testing.T) {
	engine := NewWithConfig(newMockStorage(), Config{})
	assert.Equal(t, []string{model.FieldServiceDate}, engine.config.RequiredFields)
	assert.InDelta(t, 0.19, engine.config.DefaultTaxRate, 0.001)
	assert.Equal(t, "FREIGHT", engine.config.FreightSKU)
	assert.NotEmpty(t, engine.config.FallbackDiscountTerms)
	assert.NotNil(t, engine.now)
	assert.WithinDuration(t, time.Now(), engine.now(), time.Minute)
}
