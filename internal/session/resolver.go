// Package session turns venue-local time-of-day windows into UTC ranges.
package session

import (
	"time"

	"orb-lab/internal/domain"
)

// Range is a half-open UTC interval [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether ts falls inside the range.
func (r Range) Contains(ts time.Time) bool {
	return !ts.Before(r.From) && ts.Before(r.To)
}

// Empty reports whether the range holds no instant.
func (r Range) Empty() bool {
	return !r.From.Before(r.To)
}

// Intersect returns the overlap of two ranges (possibly empty).
func (r Range) Intersect(o Range) Range {
	out := r
	if o.From.After(out.From) {
		out.From = o.From
	}
	if o.To.Before(out.To) {
		out.To = o.To
	}
	return out
}

// Resolver resolves windows for a fixed venue.
type Resolver struct {
	venue domain.Venue
}

// NewResolver creates a resolver for the venue.
func NewResolver(venue domain.Venue) *Resolver {
	return &Resolver{venue: venue}
}

// Resolve maps a window on a trading date to its UTC range.
// A window starting before the venue day start belongs to the next calendar date.
// A midnight-crossing window ends one calendar day after its start.
// The window must already be valid.
func (r *Resolver) Resolve(tradingDate domain.Date, w domain.Window) Range {
	local := tradingDate
	if w.Start.Before(r.venue.DayStart) {
		local = local.AddDays(1)
	}

	from := r.toUTC(local, w.Start)
	to := r.toUTC(local, w.End)
	if w.CrossesMidnight {
		to = to.Add(24 * time.Hour)
	}
	return Range{From: from, To: to}
}

// TradingDay returns [date@DayStart, (date+1)@DayStart) in UTC.
func (r *Resolver) TradingDay(tradingDate domain.Date) Range {
	return Range{
		From: r.toUTC(tradingDate, r.venue.DayStart),
		To:   r.toUTC(tradingDate.AddDays(1), r.venue.DayStart),
	}
}

// TradingDateOf returns the trading date a UTC instant belongs to.
func (r *Resolver) TradingDateOf(ts time.Time) domain.Date {
	local := ts.UTC().Add(r.venue.UTCOffset).Add(-r.venue.DayStart.Offset())
	return domain.NewDate(local.Year(), local.Month(), local.Day())
}

func (r *Resolver) toUTC(localDate domain.Date, t domain.TimeOfDay) time.Time {
	return localDate.Time.Add(t.Offset()).Add(-r.venue.UTCOffset)
}

// Dates enumerates every calendar date in [start, end].
func Dates(start, end domain.Date) []domain.Date {
	if end.Before(start.Time) {
		return nil
	}
	var out []domain.Date
	for d := start; !d.After(end.Time); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}
