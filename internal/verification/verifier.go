// Package verification replays recorded candidates and checks that the
// stored metrics are reproduced exactly.
package verification

import (
	"math"
	"reflect"

	"orb-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// Result is the verification of one candidate.
type Result struct {
	SpecID      string
	Position    uint64
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for a run.
type Report struct {
	RunID     string
	Total     int // candidates replayed
	Matched   int
	Divergent int
	Skipped   int // candidates without metrics
	Results   []Result
}

// CompareResultRows compares two rows field by field.
func CompareResultRows(stored, replayed domain.ResultRow) []FieldDivergence {
	var divs []FieldDivergence
	add := func(field string, expected, actual interface{}) {
		divs = append(divs, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.SpecID != replayed.SpecID {
		add("SpecID", stored.SpecID, replayed.SpecID)
	}

	ints := []struct {
		name     string
		exp, act int
	}{
		{"DaysEvaluated", stored.DaysEvaluated, replayed.DaysEvaluated},
		{"DaysWithData", stored.DaysWithData, replayed.DaysWithData},
		{"Trades", stored.Trades, replayed.Trades},
		{"Wins", stored.Wins, replayed.Wins},
		{"Losses", stored.Losses, replayed.Losses},
		{"TimeExits", stored.TimeExits, replayed.TimeExits},
		{"MaxConsecutiveLosses", stored.MaxConsecutiveLosses, replayed.MaxConsecutiveLosses},
	}
	for _, f := range ints {
		if f.exp != f.act {
			add(f.name, f.exp, f.act)
		}
	}

	floats := []struct {
		name     string
		exp, act float64
	}{
		{"WinRate", stored.WinRate, replayed.WinRate},
		{"ExpectancyR", stored.ExpectancyR, replayed.ExpectancyR},
		{"TotalR", stored.TotalR, replayed.TotalR},
		{"StdDevR", stored.StdDevR, replayed.StdDevR},
		{"MaxDrawdownR", stored.MaxDrawdownR, replayed.MaxDrawdownR},
		{"AvgMAER", stored.AvgMAER, replayed.AvgMAER},
		{"AvgMFER", stored.AvgMFER, replayed.AvgMFER},
		{"AvgMinutesToResolution", stored.AvgMinutesToResolution, replayed.AvgMinutesToResolution},
		{"TradesPerYear", stored.TradesPerYear, replayed.TradesPerYear},
		{"AnnualizedR", stored.AnnualizedR, replayed.AnnualizedR},
	}
	for _, f := range floats {
		if !floatEquals(f.exp, f.act) {
			add(f.name, f.exp, f.act)
		}
	}

	if !noTradesEqual(stored.NoTrades, replayed.NoTrades) {
		add("NoTrades", stored.NoTrades, replayed.NoTrades)
	}
	return divs
}

// noTradesEqual treats a nil map and an empty map as equal.
func noTradesEqual(a, b map[domain.NoTradeReason]int) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
