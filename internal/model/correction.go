package model

// CorrectionSource identifies what produced a proposed correction.
type CorrectionSource string

const (
	// SourceVendorMemory marks corrections derived from a vendor mapping.
	SourceVendorMemory CorrectionSource = "vendor_memory"
	// SourceCorrectionMemory marks corrections derived from a pattern.
	SourceCorrectionMemory CorrectionSource = "correction_memory"
	// SourceHeuristic marks corrections from built-in recovery rules.
	SourceHeuristic CorrectionSource = "heuristic"
	// SourceDuplicateGuard marks corrections raised by duplicate detection.
	SourceDuplicateGuard CorrectionSource = "duplicate_guard"
)

// Placeholder values for corrections that require human input rather
// than carrying a computed value.
const (
	PlaceholderHumanValidation = "[REQUIRED_HUMAN_VALIDATION]"
)

// ProposedCorrection is the unit Decide and Learn reason about.
// The memory traceability fields let later stages reinforce the exact
// memory a correction came from. Never persisted directly.
type ProposedCorrection struct {
	Field      string           `json:"field"`
	From       any              `json:"from"`
	To         any              `json:"to"`
	Confidence float64          `json:"confidence"`
	Source     CorrectionSource `json:"source"`
	Reason     string           `json:"reason"`

	Vendor     string     `json:"vendor,omitempty"`
	MemoryKind MemoryKind `json:"memory_kind,omitempty"`
	MemoryID   int64      `json:"memory_id,omitempty"`
	MemoryRef  string     `json:"memory_ref,omitempty"`
}
