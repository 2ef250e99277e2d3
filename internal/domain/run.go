package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a research run.
type RunStatus string

// Run statuses
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// IsValid reports whether s is a known status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusPaused, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a run may move from one status to another.
// Statuses move forward only; paused -> running is the single way back.
// running -> running is allowed so a crashed run can be picked up again.
func CanTransition(from, to RunStatus) bool {
	switch from {
	case RunStatusRunning:
		return to.IsValid()
	case RunStatusPaused:
		return to == RunStatusRunning || to == RunStatusPaused
	}
	return false
}

// SearchMode selects how candidate positions map onto the search space.
type SearchMode string

// Search modes
const (
	SearchGrid   SearchMode = "GRID"
	SearchRandom SearchMode = "RANDOM"
)

// Gates are the quality thresholds a candidate must clear to survive.
type Gates struct {
	MinTrades      int     `json:"min_trades"`
	MinExpectancyR float64 `json:"min_expectancy_r"`
	MaxDrawdownR   float64 `json:"max_drawdown_r"`
}

// Run config defaults
const (
	DefaultCheckpointEvery    = 25
	DefaultCheckpointInterval = 5 * time.Minute
)

// RunConfig is the immutable configuration of one parameter search.
type RunConfig struct {
	StartDate Date `json:"start_date"` // first trading date, inclusive
	EndDate   Date `json:"end_date"`   // last trading date, inclusive

	Mode          SearchMode `json:"search_mode"`
	Seed          uint64     `json:"seed"`
	MaxIterations uint64     `json:"max_iterations"` // 0 = whole space

	Gates Gates `json:"gates"`

	CheckpointEvery    int      `json:"checkpoint_every,omitempty"`
	CheckpointInterval Duration `json:"checkpoint_interval,omitempty"`

	MaxConcurrent int `json:"max_concurrent,omitempty"` // reserved, not used by the runner

	Space SearchSpace `json:"space"`
}

// WithDefaults fills zero cadence fields.
func (c RunConfig) WithDefaults() RunConfig {
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = Duration(DefaultCheckpointInterval)
	}
	return c
}

// ErrInvalidConfig is returned by RunConfig.Validate.
var ErrInvalidConfig = errors.New("invalid run config")

// Validate checks the configuration and its search space.
func (c RunConfig) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", ErrInvalidConfig)
	}
	if c.EndDate.Before(c.StartDate.Time) {
		return fmt.Errorf("%w: end_date %s before start_date %s", ErrInvalidConfig, c.EndDate, c.StartDate)
	}
	if c.Mode != SearchGrid && c.Mode != SearchRandom {
		return fmt.Errorf("%w: unknown search_mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Gates.MinTrades < 0 || c.Gates.MaxDrawdownR < 0 {
		return fmt.Errorf("%w: gate thresholds must not be negative", ErrInvalidConfig)
	}
	if c.CheckpointEvery < 0 || c.CheckpointInterval < 0 {
		return fmt.Errorf("%w: checkpoint cadence must not be negative", ErrInvalidConfig)
	}
	if err := c.Space.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Candidates returns how many positions the run will test.
func (c RunConfig) Candidates() uint64 {
	size := c.Space.Size()
	if c.MaxIterations == 0 || c.MaxIterations > size {
		return size
	}
	return c.MaxIterations
}

// SpanDays is the number of calendar days covered by the date range.
func (c RunConfig) SpanDays() int {
	return int(c.EndDate.Sub(c.StartDate.Time)/(24*time.Hour)) + 1
}

// Run is one parameter-search execution.
type Run struct {
	RunID         string     `json:"run_id"` // uuid
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        RunStatus  `json:"status"`
	Config        RunConfig  `json:"config"`
	FailureReason string     `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Date is a calendar date without a time of day, serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses YYYY-MM-DD as a UTC midnight.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

// MustDate is ParseDate for tests and constants.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDate truncates t to its calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// String renders YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON overrides the promoted time.Time decoding.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// Duration is a time.Duration serialized as a Go duration string ("5m").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(b), err)
	}
	*d = Duration(parsed)
	return nil
}
