package lookup

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"orb-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoBars    = errors.New("no bars available")
	ErrUnordered = errors.New("bars not strictly ordered by time")
)

// Between returns the bars with from <= TS < to.
// bars must be sorted ascending by TS; the result aliases the input.
func Between(bars []domain.Bar, from, to time.Time) []domain.Bar {
	if !from.Before(to) {
		return nil
	}
	lo := firstAtOrAfter(bars, from)
	hi := firstAtOrAfter(bars, to)
	return bars[lo:hi]
}

// After returns the bars with TS strictly after ts and before to.
func After(bars []domain.Bar, ts, to time.Time) []domain.Bar {
	lo := sort.Search(len(bars), func(i int) bool {
		return bars[i].TS.After(ts)
	})
	hi := firstAtOrAfter(bars, to)
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}

// BarAt returns the bar opening exactly at ts.
func BarAt(bars []domain.Bar, ts time.Time) (domain.Bar, error) {
	i := firstAtOrAfter(bars, ts)
	if i == len(bars) || !bars[i].TS.Equal(ts) {
		return domain.Bar{}, ErrNoBars
	}
	return bars[i], nil
}

// CheckOrdered verifies bars are strictly ascending by TS.
func CheckOrdered(bars []domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].TS.After(bars[i-1].TS) {
			return fmt.Errorf("%w: bar %d at %s follows %s", ErrUnordered, i, bars[i].TS, bars[i-1].TS)
		}
	}
	return nil
}

func firstAtOrAfter(bars []domain.Bar, ts time.Time) int {
	return sort.Search(len(bars), func(i int) bool {
		return !bars[i].TS.Before(ts)
	})
}
