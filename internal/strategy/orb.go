package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orb-lab/internal/domain"
	"orb-lab/internal/idhash"
	"orb-lab/internal/lookup"
	"orb-lab/internal/session"
)

// ORBStrategy is an opening-range breakout bound to one candidate spec.
type ORBStrategy struct {
	spec   domain.CandidateSpec
	specID string
	entry  entryRule
	stop   stopRule
}

// NewORBStrategy creates an ORBStrategy. Use FromSpec to pick the rules.
func NewORBStrategy(spec domain.CandidateSpec, entry entryRule, stop stopRule) *ORBStrategy {
	return &ORBStrategy{
		spec:   spec,
		specID: spec.SpecID(),
		entry:  entry,
		stop:   stop,
	}
}

// ID returns the spec_id.
func (s *ORBStrategy) ID() string {
	return s.specID
}

// Spec returns the candidate spec.
func (s *ORBStrategy) Spec() domain.CandidateSpec {
	return s.spec
}

// Windows holds the UTC ranges used on one trading date.
type Windows struct {
	Day  session.Range // trading day
	ORB  session.Range // opening range
	Scan session.Range // breakout scan, clipped to [ORB end, day end)
}

// ResolveWindows resolves the spec's windows for a date.
// The layout is the same on every date, so an error here means the spec can
// never trade and wraps domain.ErrInvalidSpec.
func (s *ORBStrategy) ResolveWindows(r *session.Resolver, date domain.Date) (Windows, error) {
	w := Windows{
		Day: r.TradingDay(date),
		ORB: r.Resolve(date, s.spec.ORBWindow()),
	}
	if w.ORB.From.Before(w.Day.From) || w.ORB.To.After(w.Day.To) {
		return Windows{}, fmt.Errorf("%w: opening range %s leaves the trading day", domain.ErrInvalidSpec, s.spec.ORBWindow())
	}

	w.Scan = r.Resolve(date, s.spec.Scan).
		Intersect(session.Range{From: w.ORB.To, To: w.Day.To})
	if w.Scan.Empty() {
		return Windows{}, fmt.Errorf("%w: scan window %s has no time after the opening range", domain.ErrInvalidSpec, s.spec.Scan)
	}
	return w, nil
}

// Execute runs the spec on one trading date.
// Only bars inside the resolved windows are consulted.
func (s *ORBStrategy) Execute(_ context.Context, input *StrategyInput) (*domain.Trade, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	w, err := s.ResolveWindows(input.Resolver, input.TradingDate)
	if err != nil {
		return nil, err
	}

	rng, err := ComputeOpeningRange(lookup.Between(input.Bars, w.ORB.From, w.ORB.To))
	if err != nil {
		if errors.Is(err, ErrDataUnavailable) {
			return s.noTrade(input.TradingDate, nil, domain.NoTradeNoData), nil
		}
		return nil, err
	}

	if !s.spec.Filters.Allows(input.TradingDate.Time, rng) {
		return s.noTrade(input.TradingDate, &rng, domain.NoTradeFiltered), nil
	}

	scan := lookup.Between(input.Bars, w.Scan.From, w.Scan.To)
	bo, err := DetectBreakout(rng, scan)
	if err != nil {
		if errors.Is(err, ErrNoBreakout) {
			return s.noTrade(input.TradingDate, &rng, domain.NoTradeNoBreakout), nil
		}
		return nil, err
	}

	entry, err := s.entry(bo, scan)
	if err != nil {
		if errors.Is(err, ErrNoBreakout) {
			return s.noTrade(input.TradingDate, &rng, domain.NoTradeNoBreakout), nil
		}
		return nil, err
	}

	levels, err := ComputeLevels(entry, s.stop(rng, entry.Direction), s.spec.RR)
	if err != nil {
		if errors.Is(err, ErrNonPositiveRisk) {
			t := s.noTrade(input.TradingDate, &rng, domain.NoTradeZeroRisk)
			t.Direction = entry.Direction
			t.EntryTime = entry.Time
			t.EntryPrice = entry.Price
			return t, nil
		}
		return nil, err
	}

	res := Simulate(entry, levels, s.spec.RR, pathAfter(input.Bars, entry, w.Day.To))

	return &domain.Trade{
		TradeID:             idhash.ComputeTradeID(s.specID, input.TradingDate.String(), entry.Time.UnixMilli()),
		SpecID:              s.specID,
		TradingDate:         input.TradingDate.Time,
		Outcome:             res.Outcome,
		Range:               &rng,
		Direction:           entry.Direction,
		EntryTime:           entry.Time,
		EntryPrice:          entry.Price,
		StopPrice:           levels.Stop,
		Target:              levels.Target,
		Risk:                levels.Risk,
		ExitTime:            res.ExitBar.TS,
		ExitPrice:           res.ExitPrice,
		RMultiple:           res.RMultiple,
		MAER:                res.MAER,
		MFER:                res.MFER,
		MinutesToResolution: res.ExitBar.TS.Sub(entry.Time).Minutes(),
	}, nil
}

// pathAfter returns the bars a position lives through until to.
// A close fill starts on the next bar; an open fill includes its own bar.
func pathAfter(bars []domain.Bar, e Entry, to time.Time) []domain.Bar {
	if e.AtOpen {
		return lookup.Between(bars, e.Time, to)
	}
	return lookup.After(bars, e.Time, to)
}

func (s *ORBStrategy) noTrade(date domain.Date, rng *domain.OpeningRange, reason domain.NoTradeReason) *domain.Trade {
	return &domain.Trade{
		TradeID:       idhash.ComputeTradeID(s.specID, date.String(), 0),
		SpecID:        s.specID,
		TradingDate:   date.Time,
		Outcome:       domain.OutcomeNoTrade,
		NoTradeReason: reason,
		Range:         rng,
	}
}

// Compile-time interface check
var _ Strategy = (*ORBStrategy)(nil)
