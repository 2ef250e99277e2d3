package reporting

import (
	"fmt"
	"strings"

	"orb-lab/internal/domain"
)

// RenderSurvivorsCSV renders survivors as a CSV string, best first.
func RenderSurvivorsCSV(survivors []*domain.Survivor) string {
	var sb strings.Builder

	sb.WriteString("rank,spec_id,instrument,kind,orb,rr,scan,trades,win_rate,")
	sb.WriteString("expectancy_r,total_r,max_drawdown_r,survival_score,confidence\n")

	for _, r := range NewSurvivorRows(survivors) {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%g,%s,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%s\n",
			r.Rank,
			r.SpecID,
			r.Instrument,
			r.Kind,
			r.ORB,
			r.RR,
			r.Scan,
			r.Trades,
			r.WinRate,
			r.ExpectancyR,
			r.TotalR,
			r.MaxDrawdownR,
			r.SurvivalScore,
			r.Confidence,
		))
	}

	return sb.String()
}
