package domain

import (
	"errors"
	"fmt"
	"math"
)

// SearchSpace is the cartesian product of candidate spec parameters.
// Dimension order is fixed; it defines grid positions.
type SearchSpace struct {
	Instruments []string    `json:"instruments"`
	ORBStarts   []TimeOfDay `json:"orb_starts"`
	ORBMinutes  []int       `json:"orb_minutes"`
	EntryRules  []EntryRule `json:"entry_rules"`
	StopModes   []StopMode  `json:"sl_modes"`
	RRs         []float64   `json:"rr_values"`
	ScanWindows []Window    `json:"scan_windows"`
	Filters     []FilterSet `json:"filters,omitempty"` // empty = one unfiltered set
}

// Dims returns the length of every dimension in position order.
func (s SearchSpace) Dims() []int {
	filters := len(s.Filters)
	if filters == 0 {
		filters = 1
	}
	return []int{
		len(s.Instruments),
		len(s.ORBStarts),
		len(s.ORBMinutes),
		len(s.EntryRules),
		len(s.StopModes),
		len(s.RRs),
		len(s.ScanWindows),
		filters,
	}
}

// Size returns the number of points in the space, or 0 when it overflows.
func (s SearchSpace) Size() uint64 {
	size := uint64(1)
	for _, d := range s.Dims() {
		if d == 0 {
			return 0
		}
		if size > math.MaxUint64/uint64(d) {
			return 0
		}
		size *= uint64(d)
	}
	return size
}

// Spec builds the candidate at the given per-dimension indices.
func (s SearchSpace) Spec(idx []int) (CandidateSpec, error) {
	if len(idx) != len(s.Dims()) {
		return CandidateSpec{}, fmt.Errorf("%w: expected %d indices, got %d", ErrInvalidSpec, len(s.Dims()), len(idx))
	}
	var filters FilterSet
	if len(s.Filters) > 0 {
		filters = s.Filters[idx[7]]
	}
	return NewCandidateSpec(CandidateSpec{
		Version:    SpecVersion,
		Instrument: s.Instruments[idx[0]],
		ORBStart:   s.ORBStarts[idx[1]],
		ORBMinutes: s.ORBMinutes[idx[2]],
		EntryRule:  s.EntryRules[idx[3]],
		StopMode:   s.StopModes[idx[4]],
		RR:         s.RRs[idx[5]],
		Scan:       s.ScanWindows[idx[6]],
		Filters:    filters,
	})
}

// Validate rejects empty dimensions and spaces too large to index.
// Each point must also build a valid spec; that is checked per dimension value
// here so generation never meets an invalid spec.
func (s SearchSpace) Validate() error {
	names := []string{"instruments", "orb_starts", "orb_minutes", "entry_rules", "sl_modes", "rr_values", "scan_windows", "filters"}
	for i, d := range s.Dims() {
		if d == 0 {
			return fmt.Errorf("search space dimension %s is empty", names[i])
		}
	}
	if s.Size() == 0 {
		return errors.New("search space too large")
	}

	// Every value is checked against the first value of the other dimensions.
	// Spec validity is a per-field check, so this covers the whole product.
	// Two values of one dimension that build the same spec_id would make two
	// positions name one candidate, so repeats are rejected on canonical form.
	dims := s.Dims()
	for d := range dims {
		seen := make(map[string]int, dims[d])
		for v := 0; v < dims[d]; v++ {
			idx := make([]int, len(dims))
			idx[d] = v
			spec, err := s.Spec(idx)
			if err != nil {
				return fmt.Errorf("search space %s[%d]: %w", names[d], v, err)
			}
			id := spec.SpecID()
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("search space %s[%d] repeats %s[%d]", names[d], v, names[d], prev)
			}
			seen[id] = v
		}
	}
	return nil
}
