package strategy

import (
	"context"
	"errors"

	"orb-lab/internal/domain"
	"orb-lab/internal/session"
)

// Errors returned while evaluating one trading date.
var (
	ErrDataUnavailable = errors.New("no bars in window")
	ErrNoBreakout      = errors.New("no breakout in scan window")
	ErrNonPositiveRisk = errors.New("non-positive risk")
	ErrNilResolver     = errors.New("strategy input has no resolver")
)

// Strategy produces one trade per trading date from bar data.
type Strategy interface {
	// Execute evaluates the strategy on a single trading date.
	// Returns a deterministic trade; NO_TRADE days are trades too.
	Execute(ctx context.Context, input *StrategyInput) (*domain.Trade, error)

	// ID returns the spec_id of the underlying candidate spec.
	ID() string
}

// StrategyInput holds all data needed for one trading date.
type StrategyInput struct {
	TradingDate domain.Date
	Bars        []domain.Bar // ordered bars covering at least the trading day
	Resolver    *session.Resolver
}

// Validate checks the input is usable.
func (in *StrategyInput) Validate() error {
	if in.Resolver == nil {
		return ErrNilResolver
	}
	return nil
}
