package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a time-of-day window is malformed.
var ErrInvalidWindow = errors.New("invalid window")

// TimeOfDay is a venue-local wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: out of range", s)
	}
	return t, nil
}

// MustTimeOfDay is ParseTimeOfDay for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Valid reports whether the time is within 00:00..23:59.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// Minutes returns minutes since local midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Before reports whether t is strictly earlier in the day than o.
func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Minutes() < o.Minutes()
}

// Offset returns the time of day as a duration since midnight.
func (t TimeOfDay) Offset() time.Duration {
	return time.Duration(t.Minutes()) * time.Minute
}

// String renders "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is a local time-of-day range. When CrossesMidnight is set the end
// falls on the calendar day after the start.
type Window struct {
	Start           TimeOfDay `json:"start"`
	End             TimeOfDay `json:"end"`
	CrossesMidnight bool      `json:"crosses_midnight"`
}

// Validate rejects windows whose end does not follow the start.
func (w Window) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("%w: time of day out of range", ErrInvalidWindow)
	}
	if w.CrossesMidnight {
		if !w.End.Before(w.Start) {
			return fmt.Errorf("%w: %s-%s marked as crossing midnight but end is not before start",
				ErrInvalidWindow, w.Start, w.End)
		}
		return nil
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: end %s must be after start %s", ErrInvalidWindow, w.End, w.Start)
	}
	return nil
}

// String renders "HH:MM-HH:MM" with a "+1" suffix for midnight-crossing windows.
func (w Window) String() string {
	if w.CrossesMidnight {
		return fmt.Sprintf("%s-%s+1", w.Start, w.End)
	}
	return fmt.Sprintf("%s-%s", w.Start, w.End)
}

// Venue carries the session configuration of a trading venue.
// The UTC offset is fixed year-round; no DST is modelled.
type Venue struct {
	UTCOffset time.Duration // local = UTC + UTCOffset
	DayStart  TimeOfDay     // canonical trading-day boundary
}

// DefaultVenue is the venue used when no session configuration is supplied:
// UTC+10 with the trading day starting at 09:00 local.
var DefaultVenue = Venue{
	UTCOffset: 10 * time.Hour,
	DayStart:  TimeOfDay{Hour: 9},
}

// ParseUTCOffset parses "+10:00", "-05:30" or "Z".
func ParseUTCOffset(s string) (time.Duration, error) {
	if s == "Z" || s == "" {
		return 0, nil
	}
	sign := time.Duration(1)
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("parse utc offset %q: missing sign", s)
	}
	t, err := ParseTimeOfDay(s[1:])
	if err != nil {
		return 0, fmt.Errorf("parse utc offset %q: %w", s, err)
	}
	return sign * t.Offset(), nil
}
