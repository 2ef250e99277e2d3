package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"orb-lab/internal/idhash"
)

// ErrInvalidSpec is returned when a candidate spec fails validation.
var ErrInvalidSpec = errors.New("invalid candidate spec")

// SpecVersion is the current canonical encoding version of CandidateSpec.
const SpecVersion = 1

// EntryRule selects how a breakout is turned into an entry.
type EntryRule string

// Entry rules
const (
	// EntryCloseBreak enters at the close of the breakout bar.
	EntryCloseBreak EntryRule = "CLOSE_BREAK"
	// EntryNextOpen enters at the open of the bar following the breakout bar.
	EntryNextOpen EntryRule = "NEXT_OPEN"
)

// StopMode selects where the protective stop is placed.
type StopMode string

// Stop modes
const (
	// StopHalf places the stop at the opening-range midpoint.
	StopHalf StopMode = "HALF"
	// StopFull places the stop at the opposite range boundary.
	StopFull StopMode = "FULL"
)

// Kind is the closed variant of a spec: one entry rule paired with one stop mode.
type Kind struct {
	Entry EntryRule
	Stop  StopMode
}

// String renders "ENTRY/STOP".
func (k Kind) String() string {
	return string(k.Entry) + "/" + string(k.Stop)
}

// Kinds lists every supported (entry rule × stop mode) variant.
var Kinds = []Kind{
	{EntryCloseBreak, StopHalf},
	{EntryCloseBreak, StopFull},
	{EntryNextOpen, StopHalf},
	{EntryNextOpen, StopFull},
}

// Supported reports whether the kind is one of the closed variants.
func (k Kind) Supported() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// FilterSet holds per-date filters evaluated after the opening range is known.
type FilterSet struct {
	MinRangeSize *float64       `json:"min_range_size,omitempty"`
	MaxRangeSize *float64       `json:"max_range_size,omitempty"`
	SkipWeekdays []time.Weekday `json:"skip_weekdays,omitempty"`
}

// Allows reports whether a trading date with the given range passes the filters.
func (f FilterSet) Allows(tradingDate time.Time, r OpeningRange) bool {
	if f.MinRangeSize != nil && r.Size < *f.MinRangeSize {
		return false
	}
	if f.MaxRangeSize != nil && r.Size > *f.MaxRangeSize {
		return false
	}
	wd := tradingDate.Weekday()
	for _, skip := range f.SkipWeekdays {
		if wd == skip {
			return false
		}
	}
	return true
}

func (f FilterSet) canonical() string {
	bound := func(p *float64) string {
		if p == nil {
			return "-"
		}
		return strconv.FormatFloat(*p, 'g', -1, 64)
	}
	days := make([]string, len(f.SkipWeekdays))
	for i, d := range f.SkipWeekdays {
		days[i] = strconv.Itoa(int(d))
	}
	return fmt.Sprintf("min=%s|max=%s|skip=%s", bound(f.MinRangeSize), bound(f.MaxRangeSize), strings.Join(days, ","))
}

// CandidateSpec is one opening-range-breakout configuration.
// Build it with NewCandidateSpec; a constructed spec is treated as immutable.
type CandidateSpec struct {
	Version    int       `json:"version"`
	Instrument string    `json:"instrument"`
	ORBStart   TimeOfDay `json:"orb_start"`
	ORBMinutes int       `json:"orb_minutes"`
	EntryRule  EntryRule `json:"entry_rule"`
	StopMode   StopMode  `json:"sl_mode"`
	RR         float64   `json:"rr"`
	Scan       Window    `json:"scan"`
	Filters    FilterSet `json:"filters"`
}

// Spec bounds
const (
	MinORBMinutes = 1
	MaxORBMinutes = 240
)

// NewCandidateSpec validates and normalizes a spec.
// SkipWeekdays are sorted and de-duplicated so equal specs share one spec_id.
func NewCandidateSpec(s CandidateSpec) (CandidateSpec, error) {
	if s.Version == 0 {
		s.Version = SpecVersion
	}
	s.Filters.SkipWeekdays = normalizeWeekdays(s.Filters.SkipWeekdays)
	if err := s.Validate(); err != nil {
		return CandidateSpec{}, err
	}
	return s, nil
}

// Validate checks every field of the spec.
func (s CandidateSpec) Validate() error {
	if s.Version != SpecVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSpec, s.Version)
	}
	if strings.TrimSpace(s.Instrument) == "" {
		return fmt.Errorf("%w: instrument is required", ErrInvalidSpec)
	}
	if !s.ORBStart.Valid() {
		return fmt.Errorf("%w: orb_start out of range", ErrInvalidSpec)
	}
	if s.ORBMinutes < MinORBMinutes || s.ORBMinutes > MaxORBMinutes {
		return fmt.Errorf("%w: orb_minutes %d outside [%d, %d]", ErrInvalidSpec, s.ORBMinutes, MinORBMinutes, MaxORBMinutes)
	}
	if !s.Kind().Supported() {
		return fmt.Errorf("%w: unsupported variant %s", ErrInvalidSpec, s.Kind())
	}
	if !(s.RR > 0) {
		return fmt.Errorf("%w: rr must be positive, got %v", ErrInvalidSpec, s.RR)
	}
	if err := s.Scan.Validate(); err != nil {
		return fmt.Errorf("%w: scan window: %v", ErrInvalidSpec, err)
	}
	f := s.Filters
	if f.MinRangeSize != nil && *f.MinRangeSize < 0 {
		return fmt.Errorf("%w: min_range_size must not be negative", ErrInvalidSpec)
	}
	if f.MinRangeSize != nil && f.MaxRangeSize != nil && *f.MinRangeSize > *f.MaxRangeSize {
		return fmt.Errorf("%w: min_range_size above max_range_size", ErrInvalidSpec)
	}
	for _, d := range f.SkipWeekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidSpec, d)
		}
	}
	return nil
}

// Kind returns the spec's closed variant.
func (s CandidateSpec) Kind() Kind {
	return Kind{Entry: s.EntryRule, Stop: s.StopMode}
}

// ORBWindow returns the opening-range window as a time-of-day window.
// The window may cross midnight when it starts late in the day.
func (s CandidateSpec) ORBWindow() Window {
	endMin := s.ORBStart.Minutes() + s.ORBMinutes
	end := TimeOfDay{Hour: (endMin / 60) % 24, Minute: endMin % 60}
	return Window{Start: s.ORBStart, End: end, CrossesMidnight: endMin >= 24*60}
}

// Canonical renders every field in fixed order. It is the input of SpecID.
func (s CandidateSpec) Canonical() string {
	return fmt.Sprintf("v%d|%s|%s|orb=%s/%d|rr=%s|scan=%s|%s",
		s.Version,
		s.Instrument,
		s.Kind(),
		s.ORBStart,
		s.ORBMinutes,
		strconv.FormatFloat(s.RR, 'g', -1, 64),
		s.Scan,
		s.Filters.canonical(),
	)
}

// SpecID returns the deterministic identifier of the spec.
func (s CandidateSpec) SpecID() string {
	return idhash.ComputeSpecID(s.Canonical())
}

// UnmarshalJSON decodes and re-validates a spec.
func (s *CandidateSpec) UnmarshalJSON(b []byte) error {
	type plain CandidateSpec
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	spec, err := NewCandidateSpec(CandidateSpec(p))
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

func normalizeWeekdays(days []time.Weekday) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
