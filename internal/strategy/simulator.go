package strategy

import (
	"math"

	"orb-lab/internal/domain"
)

// Levels are the fixed exit prices of a position.
type Levels struct {
	Stop   float64
	Target float64
	Risk   float64
}

// ComputeLevels derives risk and target from entry and stop.
// Risk is measured in the trade direction; a stop on the wrong side of the
// entry gives ErrNonPositiveRisk.
func ComputeLevels(e Entry, stop, rr float64) (Levels, error) {
	risk := e.Price - stop
	target := e.Price + risk*rr
	if e.Direction == domain.DirectionShort {
		risk = stop - e.Price
		target = e.Price - risk*rr
	}
	if !(risk > 0) {
		return Levels{}, ErrNonPositiveRisk
	}
	return Levels{Stop: stop, Target: target, Risk: risk}, nil
}

// Resolution is the exit side of a simulated trade.
type Resolution struct {
	Outcome   domain.Outcome
	ExitBar   domain.Bar
	ExitPrice float64
	RMultiple float64
	MAER      float64
	MFER      float64
}

// Simulate walks bars strictly after entry and resolves the position.
// When one bar touches both stop and target the stop wins: OHLC data cannot
// show the target was reached first, so the outcome is a LOSS.
// Without any touch the position is closed at the last bar's close.
func Simulate(e Entry, lv Levels, rr float64, after []domain.Bar) Resolution {
	long := e.Direction == domain.DirectionLong

	var mae, mfe float64
	for _, b := range after {
		var adverse, favorable float64
		var stopHit, targetHit bool
		if long {
			adverse = (e.Price - b.Low) / lv.Risk
			favorable = (b.High - e.Price) / lv.Risk
			stopHit = b.Low <= lv.Stop
			targetHit = b.High >= lv.Target
		} else {
			adverse = (b.High - e.Price) / lv.Risk
			favorable = (e.Price - b.Low) / lv.Risk
			stopHit = b.High >= lv.Stop
			targetHit = b.Low <= lv.Target
		}
		mae = math.Max(mae, adverse)
		mfe = math.Max(mfe, favorable)

		if stopHit {
			return Resolution{
				Outcome:   domain.OutcomeLoss,
				ExitBar:   b,
				ExitPrice: lv.Stop,
				RMultiple: -1,
				MAER:      math.Min(mae, 1),
				MFER:      mfe,
			}
		}
		if targetHit {
			return Resolution{
				Outcome:   domain.OutcomeWin,
				ExitBar:   b,
				ExitPrice: lv.Target,
				RMultiple: rr,
				MAER:      mae,
				MFER:      math.Min(mfe, rr),
			}
		}
	}

	if len(after) == 0 {
		return Resolution{Outcome: domain.OutcomeTimeExit, ExitBar: domain.Bar{TS: e.Time}, ExitPrice: e.Price}
	}

	last := after[len(after)-1]
	r := (last.Close - e.Price) / lv.Risk
	if !long {
		r = (e.Price - last.Close) / lv.Risk
	}
	return Resolution{
		Outcome:   domain.OutcomeTimeExit,
		ExitBar:   last,
		ExitPrice: last.Close,
		RMultiple: r,
		MAER:      mae,
		MFER:      mfe,
	}
}
