package model

import "time"

// ResolutionRecord is one append-only audit entry for a human decision
// on a single corrected field. Written regardless of whether any
// memory mutation occurred.
type ResolutionRecord struct {
	ID              int64      `json:"id"`
	DocumentID      string     `json:"document_id"`
	Vendor          string     `json:"vendor"`
	MemoryKind      MemoryKind `json:"memory_kind"`
	MemoryRef       string     `json:"memory_ref"`
	Approved        bool       `json:"approved"`
	ConfidenceDelta float64    `json:"confidence_delta"`
	Timestamp       time.Time  `json:"timestamp"`
}
