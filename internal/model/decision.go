package model

// DecisionOutcome classifies a pipeline run's terminal state.
type DecisionOutcome string

const (
	// AutoAccept means the document needs no correction.
	AutoAccept DecisionOutcome = "AUTO_ACCEPT"
	// AutoCorrect means memory is trusted enough to apply unattended.
	AutoCorrect DecisionOutcome = "AUTO_CORRECT"
	// Escalate means a human must review the document.
	Escalate DecisionOutcome = "ESCALATE"
)

// Decision is the outcome of one pipeline run for one document.
type Decision struct {
	Outcome             DecisionOutcome `json:"outcome"`
	RequiresHumanReview bool            `json:"requires_human_review"`
	ConfidenceScore     float64         `json:"confidence_score"`
	Reasoning           string          `json:"reasoning"`
}
