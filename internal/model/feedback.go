package model

import (
	"fmt"
	"strings"
)

// HumanDecision is the reviewer's final verdict on a document's
// proposed corrections.
type HumanDecision string

const (
	// DecisionApproved means the reviewer accepted the corrections.
	DecisionApproved HumanDecision = "approved"
	// DecisionRejected means the reviewer rejected the corrections.
	DecisionRejected HumanDecision = "rejected"
)

// HumanCorrection is one reviewed field change. Field supports the
// same paths as ProposedCorrection, including lineItems[N].sku.
type HumanCorrection struct {
	Field  string `yaml:"field" json:"field"`
	From   any    `yaml:"from" json:"from"`
	To     any    `yaml:"to" json:"to"`
	Reason string `yaml:"reason" json:"reason"`
}

// HumanCorrectionLog is the reviewer's feedback for one document.
type HumanCorrectionLog struct {
	DocumentID    string            `yaml:"document_id" json:"document_id"`
	Vendor        string            `yaml:"vendor" json:"vendor"`
	Corrections   []HumanCorrection `yaml:"corrections" json:"corrections"`
	FinalDecision HumanDecision     `yaml:"final_decision" json:"final_decision"`
}

// Validate checks the feedback is well formed before learning from it.
func (l *HumanCorrectionLog) Validate() error {
	switch l.FinalDecision {
	case DecisionApproved, DecisionRejected:
	default:
		return fmt.Errorf("%w: final decision must be approved or rejected, got %q", ErrInvalidFeedback, l.FinalDecision)
	}
	for i, c := range l.Corrections {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("%w: correction at index %d has no field", ErrInvalidFeedback, i)
		}
	}
	return nil
}
