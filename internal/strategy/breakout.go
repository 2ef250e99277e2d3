package strategy

import "orb-lab/internal/domain"

// Breakout is the first bar whose close leaves the opening range.
type Breakout struct {
	Direction domain.Direction
	Index     int // index into the scan bars
	Bar       domain.Bar
}

// DetectBreakout walks scan bars in time order and returns the first bar
// closing strictly above the range high (long) or strictly below the low (short).
// A close exactly at a boundary does not qualify.
func DetectBreakout(r domain.OpeningRange, scan []domain.Bar) (Breakout, error) {
	for i, b := range scan {
		switch {
		case b.Close > r.High:
			return Breakout{Direction: domain.DirectionLong, Index: i, Bar: b}, nil
		case b.Close < r.Low:
			return Breakout{Direction: domain.DirectionShort, Index: i, Bar: b}, nil
		}
	}
	return Breakout{}, ErrNoBreakout
}
