package domain

import "time"

// CheckpointVersion is the encoding version of CheckpointState.
const CheckpointVersion = 1

// CheckpointState is the resumable cursor of a run.
// candidates_completed never decreases across saves of the same run.
type CheckpointState struct {
	Version      int    `json:"version"`
	RunID        string `json:"run_id"`
	CheckpointID string `json:"checkpoint_id"` // uuid, fresh per save

	CandidatesCompleted uint64 `json:"candidates_completed"`
	CandidatesPassed    uint64 `json:"candidates_passed"`
	LastSpecID          string `json:"last_spec_id,omitempty"`

	// Running expectancy is the mean expectancy over candidates that produced trades.
	CandidatesScored uint64   `json:"candidates_scored"`
	ExpectancySumR   float64  `json:"expectancy_sum_r"`
	BestExpectancyR  *float64 `json:"best_expectancy_r,omitempty"`
	BestSpecID       string   `json:"best_spec_id,omitempty"`

	SearchCursor uint64        `json:"search_cursor"` // next position to test
	Elapsed      time.Duration `json:"elapsed_ns"`
	Status       RunStatus     `json:"status"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// RunningExpectancyR returns the mean expectancy of scored candidates.
func (c CheckpointState) RunningExpectancyR() float64 {
	if c.CandidatesScored == 0 {
		return 0
	}
	return c.ExpectancySumR / float64(c.CandidatesScored)
}
