package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/domain"
	"orb-lab/internal/lookup"
	"orb-lab/internal/metrics"
	"orb-lab/internal/observability"
	"orb-lab/internal/session"
	"orb-lab/internal/storage"
	"orb-lab/internal/strategy"
)

// Runner errors
var (
	ErrEmptyRange = errors.New("date range has no trading dates")
	ErrLoadBars   = errors.New("load bars")
)

// Result is the outcome of backtesting one spec over a date range.
type Result struct {
	SpecID  string
	Trades  []*domain.Trade // one per trading date, NO_TRADE days included
	Metrics domain.ResultRow
}

// Runner backtests candidate specs against the bar store.
// Bars are loaded once per instrument and date range and then reused,
// so a Runner is bound to one run. It is not safe for concurrent use.
type Runner struct {
	barStore storage.BarStore
	resolver *session.Resolver
	logger   zerolog.Logger

	cache map[string]cachedBars
}

type cachedBars struct {
	from, to time.Time
	bars     []domain.Bar
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	BarStore storage.BarStore
	Resolver *session.Resolver
	Logger   zerolog.Logger
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = session.NewResolver(domain.DefaultVenue)
	}
	return &Runner{
		barStore: opts.BarStore,
		resolver: resolver,
		logger:   opts.Logger.With().Str("component", "simulation").Logger(),
		cache:    make(map[string]cachedBars),
	}
}

// Run backtests spec on every calendar date in [start, end].
// Steps:
//  1. Build the strategy from the spec
//  2. Check the window layout once (it is identical on every date)
//  3. Load bars covering all trading days
//  4. Execute per date on that day's bars only
//  5. Reduce the trades into a ResultRow
//
// An unusable window layout returns an error wrapping domain.ErrInvalidSpec.
// Bar store failures wrap ErrLoadBars.
func (r *Runner) Run(ctx context.Context, spec domain.CandidateSpec, start, end domain.Date) (*Result, error) {
	strat, err := strategy.FromSpec(spec)
	if err != nil {
		return nil, err
	}

	dates := session.Dates(start, end)
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: %s..%s", ErrEmptyRange, start, end)
	}

	if orb, ok := strat.(*strategy.ORBStrategy); ok {
		if _, err := orb.ResolveWindows(r.resolver, dates[0]); err != nil {
			return nil, err
		}
	}

	from := r.resolver.TradingDay(dates[0]).From
	to := r.resolver.TradingDay(dates[len(dates)-1]).To
	bars, err := r.loadBars(ctx, spec.Instrument, from, to)
	if err != nil {
		return nil, err
	}

	trades := make([]*domain.Trade, 0, len(dates))
	for _, date := range dates {
		day := r.resolver.TradingDay(date)
		trade, err := strat.Execute(ctx, &strategy.StrategyInput{
			TradingDate: date,
			Bars:        lookup.Between(bars, day.From, day.To),
			Resolver:    r.resolver,
		})
		if err != nil {
			return nil, fmt.Errorf("execute %s on %s: %w", strat.ID(), date, err)
		}
		observability.RecordTrade(string(trade.Outcome))
		trades = append(trades, trade)
	}

	return &Result{
		SpecID:  strat.ID(),
		Trades:  trades,
		Metrics: metrics.Compute(strat.ID(), trades, len(dates)),
	}, nil
}

// loadBars returns ordered bars of an instrument in [from, to), cached per instrument.
func (r *Runner) loadBars(ctx context.Context, instrument string, from, to time.Time) ([]domain.Bar, error) {
	if c, ok := r.cache[instrument]; ok && !from.Before(c.from) && !to.After(c.to) {
		return lookup.Between(c.bars, from, to), nil
	}

	bars, err := r.barStore.GetRange(ctx, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadBars, instrument, err)
	}
	if err := lookup.CheckOrdered(bars); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadBars, instrument, err)
	}

	observability.RecordBarsLoaded(len(bars))
	r.logger.Debug().
		Str("instrument", instrument).
		Time("from", from).
		Time("to", to).
		Int("bars", len(bars)).
		Msg("bars loaded")

	r.cache[instrument] = cachedBars{from: from, to: to, bars: bars}
	return bars, nil
}
