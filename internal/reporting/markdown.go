package reporting

import (
	"fmt"
	"strings"
	"time"

	"orb-lab/internal/domain"
)

// RenderProgress renders the progress of a run as plain text.
// cp may be nil when the run has not checkpointed yet.
func RenderProgress(run *domain.Run, cp *domain.CheckpointState) string {
	var sb strings.Builder

	total := run.Config.Candidates()
	sb.WriteString(fmt.Sprintf("run:              %s\n", run.RunID))
	sb.WriteString(fmt.Sprintf("status:           %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("search:           %s seed=%d\n", run.Config.Mode, run.Config.Seed))
	sb.WriteString(fmt.Sprintf("dates:            %s..%s\n", run.Config.StartDate, run.Config.EndDate))
	sb.WriteString(fmt.Sprintf("started:          %s\n", run.StartedAt.Format(time.RFC3339)))
	if run.FinishedAt != nil {
		sb.WriteString(fmt.Sprintf("finished:         %s\n", run.FinishedAt.Format(time.RFC3339)))
	}
	if run.FailureReason != "" {
		sb.WriteString(fmt.Sprintf("failure:          %s\n", run.FailureReason))
	}

	if cp == nil {
		sb.WriteString(fmt.Sprintf("completed:        0/%d\n", total))
		sb.WriteString("last checkpoint:  never\n")
		return sb.String()
	}

	pct := 0.0
	if total > 0 {
		pct = float64(cp.CandidatesCompleted) / float64(total) * 100
	}
	sb.WriteString(fmt.Sprintf("completed:        %d/%d (%.1f%%)\n", cp.CandidatesCompleted, total, pct))
	sb.WriteString(fmt.Sprintf("passed:           %d\n", cp.CandidatesPassed))
	sb.WriteString(fmt.Sprintf("running exp (R):  %.4f over %d scored\n", cp.RunningExpectancyR(), cp.CandidatesScored))
	if cp.BestExpectancyR != nil {
		sb.WriteString(fmt.Sprintf("best exp (R):     %.4f (%s)\n", *cp.BestExpectancyR, cp.BestSpecID))
	} else {
		sb.WriteString("best exp (R):     -\n")
	}
	sb.WriteString(fmt.Sprintf("elapsed:          %s\n", cp.Elapsed.Round(time.Second)))
	sb.WriteString(fmt.Sprintf("last checkpoint:  %s\n", cp.UpdatedAt.Format(time.RFC3339)))

	return sb.String()
}

// RenderRunList renders runs as a Markdown table, in the order given.
func RenderRunList(runs []*domain.Run) string {
	if len(runs) == 0 {
		return "No runs.\n"
	}

	var sb strings.Builder
	sb.WriteString("| Run | Status | Started | Mode | Candidates | Dates |\n")
	sb.WriteString("|-----|--------|---------|------|------------|-------|\n")
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %s..%s |\n",
			r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), r.Config.Mode,
			r.Config.Candidates(), r.Config.StartDate, r.Config.EndDate))
	}
	return sb.String()
}

// RenderMarkdown renders a full run report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Run %s\n\n", r.Run.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Progress\n\n```\n")
	sb.WriteString(RenderProgress(r.Run, r.Checkpoint))
	sb.WriteString("```\n\n")

	gates := r.Run.Config.Gates
	sb.WriteString("## Gates\n\n")
	sb.WriteString("| Gate | Threshold |\n")
	sb.WriteString("|------|-----------|\n")
	sb.WriteString(fmt.Sprintf("| min_trades | >= %d |\n", gates.MinTrades))
	sb.WriteString(fmt.Sprintf("| min_expectancy_r | >= %.4f |\n", gates.MinExpectancyR))
	sb.WriteString(fmt.Sprintf("| max_drawdown_r | <= %.4f |\n", gates.MaxDrawdownR))
	sb.WriteString("\n")

	c := r.Candidates
	sb.WriteString("## Candidates\n\n")
	sb.WriteString("| Status | Count |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| tested | %d |\n", c.Tested))
	sb.WriteString(fmt.Sprintf("| passed | %d |\n", c.Passed))
	sb.WriteString(fmt.Sprintf("| invalid | %d |\n", c.Invalid))
	sb.WriteString(fmt.Sprintf("| failed | %d |\n", c.Failed))
	sb.WriteString(fmt.Sprintf("| **total** | %d |\n", c.Total))
	sb.WriteString("\n")

	sb.WriteString("## Survivors\n\n")
	if len(r.Survivors) == 0 {
		sb.WriteString("No survivors.\n")
		return sb.String()
	}
	sb.WriteString("| # | Spec | Kind | ORB | RR | Scan | Trades | WinRate | Exp (R) | MaxDD (R) | Score | Confidence |\n")
	sb.WriteString("|---|------|------|-----|----|------|--------|---------|---------|-----------|-------|------------|\n")
	for _, s := range r.Survivors {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %g | %s | %d | %.4f | %.4f | %.4f | %.4f | %s |\n",
			s.Rank, shortID(s.SpecID), s.Kind, s.ORB, s.RR, s.Scan, s.Trades,
			s.WinRate, s.ExpectancyR, s.MaxDrawdownR, s.SurvivalScore, s.Confidence))
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
