package gate

import "orb-lab/internal/domain"

// CriterionResult represents pass/fail for one gate.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Result is the gate verdict for one candidate.
type Result struct {
	Pass          bool
	Criteria      []CriterionResult
	SurvivalScore float64
	Confidence    domain.Confidence
}

// Failed returns the names of the gates that did not pass.
func (r *Result) Failed() []string {
	var out []string
	for _, c := range r.Criteria {
		if !c.Pass {
			out = append(out, c.Name)
		}
	}
	return out
}
