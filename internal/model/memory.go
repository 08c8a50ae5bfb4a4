package model

import (
	"errors"
	"time"
)

// Validation errors for model types.
var (
	ErrInvalidInvoice  = errors.New("invalid invoice")
	ErrInvalidMemory   = errors.New("invalid memory")
	ErrInvalidFeedback = errors.New("invalid human feedback")
)

// MemoryKind distinguishes the two learned memory stores.
type MemoryKind string

const (
	// KindVendor identifies vendor label-to-field mappings.
	KindVendor MemoryKind = "VENDOR"
	// KindCorrection identifies named correction patterns.
	KindCorrection MemoryKind = "CORRECTION"
)

// Correction pattern names. Patterns are declarative signals; handlers
// dispatch on these names, never on document identifiers.
const (
	PatternVATIncluded = "VAT_INCLUDED"
	PatternSkonto      = "SKONTO"
	PatternFreightSKU  = "FREIGHT_SKU"
)

// Remediation descriptions recorded alongside learned patterns.
const (
	RemediationRecomputeTax    = "RECOMPUTE_TAX_FROM_GROSS"
	RemediationExtractDiscount = "EXTRACT_DISCOUNT_TERMS"
	RemediationMapFreightSKU   = "MAP_DESCRIPTION_TO_FREIGHT_SKU"
)

// VendorMemory is a learned association between a label appearing in a
// vendor's documents and the structured field it populates.
// Unique per (vendor, source_label, target_field).
type VendorMemory struct {
	ID              int64      `json:"id"`
	Vendor          string     `json:"vendor"`
	SourceLabel     string     `json:"source_label"`
	TargetField     string     `json:"target_field"`
	Confidence      float64    `json:"confidence"`
	UsageCount      int        `json:"usage_count"`
	ReinforcedCount int        `json:"reinforced_count"`
	RejectedCount   int        `json:"rejected_count"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// RelevanceScore is computed during recall against one document.
	// Never persisted.
	RelevanceScore float64 `json:"-"`
}

// Key returns the natural key reference used in audit records,
// e.g. "Leistungsdatum->serviceDate".
func (m *VendorMemory) Key() string {
	return m.SourceLabel + "->" + m.TargetField
}

// CorrectionMemory is a learned, named class of recurring extraction
// error with an associated remediation. A nil Vendor means the pattern
// applies globally. Unique per (vendor, pattern, remediation).
type CorrectionMemory struct {
	ID              int64      `json:"id"`
	Vendor          *string    `json:"vendor,omitempty"`
	Pattern         string     `json:"pattern"`
	Remediation     string     `json:"remediation"`
	Confidence      float64    `json:"confidence"`
	UsageCount      int        `json:"usage_count"`
	ReinforcedCount int        `json:"reinforced_count"`
	RejectedCount   int        `json:"rejected_count"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// RelevanceScore is computed during recall against one document.
	// Never persisted.
	RelevanceScore float64 `json:"-"`
}

// MemoryContext is the ranked recall result for one document.
// Consumed by Apply and Decide, never stored.
type MemoryContext struct {
	VendorMappings  []VendorMemory
	Corrections     []CorrectionMemory
	IsDuplicate     bool
	DuplicateReason string
}
