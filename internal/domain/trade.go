package domain

import "time"

// Direction of a breakout trade.
type Direction string

// Directions
const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Outcome of simulating one spec on one trading date.
type Outcome string

// Outcomes
const (
	OutcomeWin      Outcome = "WIN"
	OutcomeLoss     Outcome = "LOSS"
	OutcomeTimeExit Outcome = "TIME_EXIT"
	OutcomeNoTrade  Outcome = "NO_TRADE"
)

// NoTradeReason explains a NO_TRADE outcome.
type NoTradeReason string

// No-trade reasons
const (
	NoTradeNoData     NoTradeReason = "NO_DATA"     // no bars in the opening range
	NoTradeNoBreakout NoTradeReason = "NO_BREAKOUT" // no close beyond the range inside the scan window
	NoTradeFiltered   NoTradeReason = "FILTERED"    // rejected by the spec's filter set
	NoTradeZeroRisk   NoTradeReason = "ZERO_RISK"   // entry sits on the stop
)

// NoTradeReasons lists every reason in reporting order.
var NoTradeReasons = []NoTradeReason{NoTradeNoData, NoTradeNoBreakout, NoTradeFiltered, NoTradeZeroRisk}

// OpeningRange is the high/low band of the opening window for one trading date.
// Invariant: High >= Low, Size = High-Low, Midpoint = (High+Low)/2.
type OpeningRange struct {
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Size     float64 `json:"size"`
	Midpoint float64 `json:"midpoint"`
}

// NewOpeningRange derives size and midpoint from high and low.
func NewOpeningRange(high, low float64) OpeningRange {
	return OpeningRange{
		High:     high,
		Low:      low,
		Size:     high - low,
		Midpoint: (high + low) / 2,
	}
}

// Trade is the result of simulating one spec on one trading date.
// Any outcome other than NO_TRADE has Risk > 0.
type Trade struct {
	TradeID     string    `json:"trade_id"`     // deterministic hash
	SpecID      string    `json:"spec_id"`      // candidate spec
	TradingDate time.Time `json:"trading_date"` // venue-local date at 00:00 UTC

	Outcome       Outcome       `json:"outcome"`
	NoTradeReason NoTradeReason `json:"no_trade_reason,omitempty"`

	Range *OpeningRange `json:"range,omitempty"` // nil when the opening window had no bars

	// Entry
	Direction  Direction `json:"direction,omitempty"`
	EntryTime  time.Time `json:"entry_time,omitempty"`
	EntryPrice float64   `json:"entry_price,omitempty"`
	StopPrice  float64   `json:"stop_price,omitempty"`
	Target     float64   `json:"target_price,omitempty"`
	Risk       float64   `json:"risk,omitempty"`

	// Exit
	ExitTime  time.Time `json:"exit_time,omitempty"`
	ExitPrice float64   `json:"exit_price,omitempty"`

	// Result in R units
	RMultiple           float64 `json:"r_multiple"`
	MAER                float64 `json:"mae_r"`
	MFER                float64 `json:"mfe_r"`
	MinutesToResolution float64 `json:"minutes_to_resolution"`
}

// IsTrade reports whether a position was actually taken.
func (t Trade) IsTrade() bool {
	return t.Outcome != OutcomeNoTrade
}

// DateLayout formats trading dates.
const DateLayout = "2006-01-02"

// TradingDateString renders the trading date as YYYY-MM-DD.
func (t Trade) TradingDateString() string {
	return t.TradingDate.Format(DateLayout)
}
