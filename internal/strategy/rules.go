package strategy

import (
	"time"

	"orb-lab/internal/domain"
)

// Entry is a filled position.
// AtOpen marks a fill at the open of the bar at Time, whose whole range then
// follows the fill.
type Entry struct {
	Direction domain.Direction
	Time      time.Time
	Price     float64
	AtOpen    bool
}

// entryRule turns a breakout into an entry using only scan bars up to the fill.
type entryRule func(b Breakout, scan []domain.Bar) (Entry, error)

// closeBreakEntry fills at the breakout bar's close.
func closeBreakEntry(b Breakout, _ []domain.Bar) (Entry, error) {
	return Entry{Direction: b.Direction, Time: b.Bar.TS, Price: b.Bar.Close}, nil
}

// nextOpenEntry fills at the open of the next scan bar.
// No fill when the breakout is the last bar of the scan window.
func nextOpenEntry(b Breakout, scan []domain.Bar) (Entry, error) {
	if b.Index+1 >= len(scan) {
		return Entry{}, ErrNoBreakout
	}
	next := scan[b.Index+1]
	return Entry{Direction: b.Direction, Time: next.TS, Price: next.Open, AtOpen: true}, nil
}

// stopRule places the protective stop.
type stopRule func(r domain.OpeningRange, d domain.Direction) float64

// halfStop uses the range midpoint.
func halfStop(r domain.OpeningRange, _ domain.Direction) float64 {
	return r.Midpoint
}

// fullStop uses the opposite range boundary.
func fullStop(r domain.OpeningRange, d domain.Direction) float64 {
	if d == domain.DirectionLong {
		return r.Low
	}
	return r.High
}
