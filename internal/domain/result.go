package domain

// ResultRow aggregates every Trade of one (run, spec) pair.
// It is derived from Trades by metrics.Compute and never edited afterwards.
type ResultRow struct {
	SpecID string `json:"spec_id"`

	DaysEvaluated int `json:"days_evaluated"`
	DaysWithData  int `json:"days_with_data"`

	Trades    int `json:"trades"`
	Wins      int `json:"wins"`
	Losses    int `json:"losses"`
	TimeExits int `json:"time_exits"`

	NoTrades map[NoTradeReason]int `json:"no_trades,omitempty"`

	WinRate     float64 `json:"win_rate"`
	ExpectancyR float64 `json:"expectancy_r"`
	TotalR      float64 `json:"total_r"`
	StdDevR     float64 `json:"stddev_r"`

	MaxDrawdownR         float64 `json:"max_drawdown_r"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`

	AvgMAER                float64 `json:"avg_mae_r"`
	AvgMFER                float64 `json:"avg_mfe_r"`
	AvgMinutesToResolution float64 `json:"avg_minutes_to_resolution"`

	TradesPerYear float64 `json:"trades_per_year"`
	AnnualizedR   float64 `json:"annualized_r"`
}

// NoTradeCount returns the number of NO_TRADE days for a reason.
func (r ResultRow) NoTradeCount(reason NoTradeReason) int {
	return r.NoTrades[reason]
}
