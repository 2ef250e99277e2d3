package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"orb-lab/internal/domain"
)

// daysPerYear converts the configured date span into years.
const daysPerYear = 365.25

// Compute reduces the trades of one spec into a ResultRow.
// trades holds one entry per evaluated trading date, NO_TRADE days included.
// spanDays is the calendar length of the configured date range.
// Trades are sorted by TradingDate ASC, EntryTime ASC, TradeID ASC before
// computing order-dependent metrics (MaxDrawdownR, MaxConsecutiveLosses).
func Compute(specID string, trades []*domain.Trade, spanDays int) domain.ResultRow {
	row := domain.ResultRow{
		SpecID:        specID,
		DaysEvaluated: len(trades),
	}

	sorted := make([]*domain.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.TradingDate.Equal(b.TradingDate) {
			return a.TradingDate.Before(b.TradingDate)
		}
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.Before(b.EntryTime)
		}
		return a.TradeID < b.TradeID
	})

	var rs, maes, mfes, minutes []float64
	for _, t := range sorted {
		if t.Outcome != domain.OutcomeNoTrade || t.NoTradeReason != domain.NoTradeNoData {
			row.DaysWithData++
		}
		switch t.Outcome {
		case domain.OutcomeNoTrade:
			if row.NoTrades == nil {
				row.NoTrades = make(map[domain.NoTradeReason]int)
			}
			row.NoTrades[t.NoTradeReason]++
			continue
		case domain.OutcomeWin:
			row.Wins++
		case domain.OutcomeLoss:
			row.Losses++
		case domain.OutcomeTimeExit:
			row.TimeExits++
		}
		rs = append(rs, t.RMultiple)
		maes = append(maes, t.MAER)
		mfes = append(mfes, t.MFER)
		minutes = append(minutes, t.MinutesToResolution)
	}

	row.Trades = len(rs)
	if row.Trades == 0 {
		return row
	}

	row.WinRate = computeWinRate(row.Wins, row.Trades)
	row.ExpectancyR = stat.Mean(rs, nil)
	row.TotalR = floatsSum(rs)
	row.StdDevR = computeStddev(rs)
	row.MaxDrawdownR = computeMaxDrawdown(rs)
	row.MaxConsecutiveLosses = computeMaxConsecutiveLosses(rs)
	row.AvgMAER = stat.Mean(maes, nil)
	row.AvgMFER = stat.Mean(mfes, nil)
	row.AvgMinutesToResolution = stat.Mean(minutes, nil)

	if spanDays > 0 {
		row.TradesPerYear = float64(row.Trades) / (float64(spanDays) / daysPerYear)
		row.AnnualizedR = row.ExpectancyR * row.TradesPerYear
	}
	return row
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func floatsSum(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum
}

// computeStddev returns the sample standard deviation (n-1 denominator).
// Zero for fewer than two samples.
func computeStddev(rs []float64) float64 {
	if len(rs) < 2 {
		return 0
	}
	sd := stat.StdDev(rs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative R.
// max_drawdown = MAX(peak_cumulative - trough_cumulative)
// rs must be in chronological order.
func computeMaxDrawdown(rs []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, r := range rs {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		drawdown := peak - cumulative
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds the longest streak of negative R.
// rs must be in chronological order.
func computeMaxConsecutiveLosses(rs []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, r := range rs {
		if r < 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
