package domain

import "time"

// CandidateStatus is the evaluation status of one candidate within a run.
type CandidateStatus string

// Candidate statuses
const (
	CandidateTested  CandidateStatus = "tested"  // evaluated, did not clear the gates
	CandidatePassed  CandidateStatus = "passed"  // evaluated and persisted as a survivor
	CandidateInvalid CandidateStatus = "invalid" // spec cannot be evaluated (e.g. empty scan window)
	CandidateFailed  CandidateStatus = "failed"  // evaluation error other than an invalid spec
)

// CandidateResult is the persisted outcome of testing one spec in a run.
type CandidateResult struct {
	RunID     string          `json:"run_id"`
	SpecID    string          `json:"spec_id"`
	Position  uint64          `json:"position"` // generator position
	Spec      CandidateSpec   `json:"spec"`
	Metrics   *ResultRow      `json:"metrics,omitempty"` // nil unless evaluated
	Status    CandidateStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Confidence grades a survivor by how far its trade count exceeds the gate.
type Confidence string

// Confidence levels
const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Survivor is a spec whose metrics cleared every gate of a run.
// Survivors are append-only.
type Survivor struct {
	RunID         string        `json:"run_id"`
	SpecID        string        `json:"spec_id"`
	Spec          CandidateSpec `json:"spec"`
	Metrics       ResultRow     `json:"metrics"`
	SurvivalScore float64       `json:"survival_score"`
	Confidence    Confidence    `json:"confidence"`
	CreatedAt     time.Time     `json:"created_at"`
}
