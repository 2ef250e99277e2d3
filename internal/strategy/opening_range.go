package strategy

import "orb-lab/internal/domain"

// ComputeOpeningRange returns the high/low band over bars already cut to the
// opening window. Returns ErrDataUnavailable when there are no bars.
func ComputeOpeningRange(bars []domain.Bar) (domain.OpeningRange, error) {
	if len(bars) == 0 {
		return domain.OpeningRange{}, ErrDataUnavailable
	}

	high, low := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return domain.NewOpeningRange(high, low), nil
}
