// Package engine implements the four-stage correction pipeline:
// Recall loads and ranks memory for a document, Apply proposes
// corrections from it, Decide classifies the outcome, and Learn folds
// human feedback back into memory.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldmend/fieldmend/internal/model"
	"github.com/fieldmend/fieldmend/internal/service"
)

// Config holds the tunable policy of the pipeline. Nothing in it may
// identify a vendor or a document; corrections are driven by declarative
// signals only.
type Config struct {
	// RequiredFields are field paths whose absence always produces a
	// placeholder correction when no vendor mapping can fill them.
	RequiredFields []string

	// DefaultTaxRate applies when a document carries no tax rate.
	DefaultTaxRate float64

	// FreightSKU is the canonical code freight line items map to.
	FreightSKU string

	// FallbackDiscountTerms is proposed when the discount pattern is
	// recalled but no clause can be extracted from the raw text.
	FallbackDiscountTerms string
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		RequiredFields:        []string{model.FieldServiceDate},
		DefaultTaxRate:        0.19,
		FreightSKU:            "FREIGHT",
		FallbackDiscountTerms: "2% Skonto within 10 days",
	}
}

// Engine carries the pipeline's dependencies. One engine serves many
// documents; it holds no per-document state.
type Engine struct {
	storage service.Storage
	config  Config
	now     func() time.Time
}

// New creates an engine with the default configuration.
func New(storage service.Storage) *Engine {
	return NewWithConfig(storage, DefaultConfig())
}

// NewWithConfig creates an engine with a custom configuration.
func NewWithConfig(storage service.Storage, config Config) *Engine {
	if len(config.RequiredFields) == 0 {
		config.RequiredFields = DefaultConfig().RequiredFields
	}
	if config.DefaultTaxRate <= 0 {
		config.DefaultTaxRate = DefaultConfig().DefaultTaxRate
	}
	if config.FreightSKU == "" {
		config.FreightSKU = DefaultConfig().FreightSKU
	}
	if config.FallbackDiscountTerms == "" {
		config.FallbackDiscountTerms = DefaultConfig().FallbackDiscountTerms
	}
	return &Engine{
		storage: storage,
		config:  config,
		now:     time.Now,
	}
}

// Process runs Recall, Apply and Decide for one document.
func (e *Engine) Process(ctx context.Context, inv *model.Invoice) (*model.MemoryContext, []model.ProposedCorrection, model.Decision, error) {
	memCtx, err := e.Recall(ctx, inv)
	if err != nil {
		return nil, nil, model.Decision{}, err
	}
	corrections, err := e.Apply(ctx, inv, memCtx)
	if err != nil {
		return nil, nil, model.Decision{}, err
	}
	decision := e.Decide(inv.Vendor, inv.Fields.InvoiceNumber, corrections, memCtx)
	return memCtx, corrections, decision, nil
}

// RecallError wraps a failure in the recall stage.
type RecallError struct {
	DocumentID string
	Err        error
}

func (e *RecallError) Error() string {
	return fmt.Sprintf("recall failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *RecallError) Unwrap() error { return e.Err }

// ApplyError wraps a failure in the apply stage.
type ApplyError struct {
	DocumentID string
	Err        error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// LearnError wraps a failure in the learn stage.
type LearnError struct {
	DocumentID string
	Err        error
}

func (e *LearnError) Error() string {
	return fmt.Sprintf("learn failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *LearnError) Unwrap() error { return e.Err }
