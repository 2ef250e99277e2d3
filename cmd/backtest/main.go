// Package main backtests one candidate spec over a date range.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"orb-lab/internal/config"
	"orb-lab/internal/domain"
	"orb-lab/internal/logger"
	"orb-lab/internal/session"
	"orb-lab/internal/simulation"
	"orb-lab/internal/storage/backend"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Spec
	specFile := flag.String("spec", "", "CandidateSpec JSON file (overrides the spec flags)")
	instrument := flag.String("instrument", "MGC", "Instrument")
	orbStart := flag.String("orb-start", "09:00", "Opening range start (HH:MM venue time)")
	orbMinutes := flag.Int("orb-minutes", 15, "Opening range length in minutes")
	entry := flag.String("entry", string(domain.EntryCloseBreak), "Entry rule: CLOSE_BREAK or NEXT_OPEN")
	stop := flag.String("sl", string(domain.StopHalf), "Stop mode: HALF or FULL")
	rr := flag.Float64("rr", 2, "Reward to risk multiple")
	scan := flag.String("scan", "09:15-17:00", "Scan window HH:MM-HH:MM, +1 suffix when it ends after midnight")

	// Range
	from := flag.String("from", "", "First trading date YYYY-MM-DD (required)")
	to := flag.String("to", "", "Last trading date YYYY-MM-DD (required)")

	// Bars
	flag.StringVar(&cfg.BarSource, "bar-source", cfg.BarSource, "Bar source: clickhouse or csv")
	flag.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string")
	flag.StringVar(&cfg.BarsCSV, "bars-csv", cfg.BarsCSV, "CSV file of 1-minute bars")
	flag.StringVar(&cfg.BarsInstrument, "bars-instrument", cfg.BarsInstrument, "Instrument for CSV files without an instrument column")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")

	flag.Parse()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	if *from == "" || *to == "" {
		log.Fatal().Msg("--from and --to are required")
	}
	start, err := domain.ParseDate(*from)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid --from")
	}
	end, err := domain.ParseDate(*to)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid --to")
	}

	var spec domain.CandidateSpec
	if *specFile != "" {
		spec, err = readSpec(*specFile)
	} else {
		spec, err = specFromFlags(*instrument, *orbStart, *orbMinutes, *entry, *stop, *rr, *scan)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid spec")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	bars, err := backend.OpenBars(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open bar source")
	}
	defer bars.Close()

	runner := simulation.NewRunner(simulation.RunnerOptions{
		BarStore: bars,
		Resolver: session.NewResolver(cfg.Venue),
		Logger:   log,
	})
	res, err := runner.Run(ctx, spec, start, end)
	if err != nil {
		log.Fatal().Err(err).Str("spec_id", spec.SpecID()).Msg("backtest failed")
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Spec    domain.CandidateSpec `json:"spec"`
			Trades  []*domain.Trade      `json:"trades"`
			Metrics domain.ResultRow     `json:"metrics"`
		}{spec, res.Trades, res.Metrics}); err != nil {
			log.Fatal().Err(err).Msg("encode result")
		}
		return
	}

	printResult(spec, res)
}

func readSpec(path string) (domain.CandidateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.CandidateSpec{}, fmt.Errorf("read spec: %w", err)
	}
	var spec domain.CandidateSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return domain.CandidateSpec{}, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return spec, nil
}

func specFromFlags(instrument, orbStart string, orbMinutes int, entry, stop string, rr float64, scan string) (domain.CandidateSpec, error) {
	start, err := domain.ParseTimeOfDay(orbStart)
	if err != nil {
		return domain.CandidateSpec{}, err
	}
	window, err := parseWindow(scan)
	if err != nil {
		return domain.CandidateSpec{}, err
	}
	return domain.NewCandidateSpec(domain.CandidateSpec{
		Instrument: instrument,
		ORBStart:   start,
		ORBMinutes: orbMinutes,
		EntryRule:  domain.EntryRule(strings.ToUpper(entry)),
		StopMode:   domain.StopMode(strings.ToUpper(stop)),
		RR:         rr,
		Scan:       window,
	})
}

// parseWindow parses "HH:MM-HH:MM" with an optional "+1" suffix.
func parseWindow(s string) (domain.Window, error) {
	var w domain.Window
	if strings.HasSuffix(s, "+1") {
		w.CrossesMidnight = true
		s = strings.TrimSuffix(s, "+1")
	}
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return domain.Window{}, fmt.Errorf("window %q: want HH:MM-HH:MM", s)
	}
	var err error
	if w.Start, err = domain.ParseTimeOfDay(startStr); err != nil {
		return domain.Window{}, err
	}
	if w.End, err = domain.ParseTimeOfDay(endStr); err != nil {
		return domain.Window{}, err
	}
	return w, w.Validate()
}

func printResult(spec domain.CandidateSpec, res *simulation.Result) {
	fmt.Printf("spec %s\n  %s\n\n", res.SpecID, spec.Canonical())

	fmt.Printf("%-10s %-9s %-11s %-5s %10s %10s %10s %8s %7s %7s\n",
		"date", "outcome", "reason", "dir", "entry", "stop", "exit", "R", "MAE", "MFE")
	for _, t := range res.Trades {
		if !t.IsTrade() {
			fmt.Printf("%-10s %-9s %-11s\n", t.TradingDateString(), t.Outcome, t.NoTradeReason)
			continue
		}
		fmt.Printf("%-10s %-9s %-11s %-5s %10.2f %10.2f %10.2f %8.3f %7.3f %7.3f\n",
			t.TradingDateString(), t.Outcome, "", t.Direction,
			t.EntryPrice, t.StopPrice, t.ExitPrice, t.RMultiple, t.MAER, t.MFER)
	}

	m := res.Metrics
	fmt.Printf("\ndays:        %d evaluated, %d with data\n", m.DaysEvaluated, m.DaysWithData)
	fmt.Printf("trades:      %d (%d win, %d loss, %d time exit)\n", m.Trades, m.Wins, m.Losses, m.TimeExits)
	for _, reason := range domain.NoTradeReasons {
		if n := m.NoTradeCount(reason); n > 0 {
			fmt.Printf("no trade:    %d %s\n", n, reason)
		}
	}
	fmt.Printf("win rate:    %.4f\n", m.WinRate)
	fmt.Printf("expectancy:  %.4f R (stddev %.4f)\n", m.ExpectancyR, m.StdDevR)
	fmt.Printf("total:       %.4f R\n", m.TotalR)
	fmt.Printf("max dd:      %.4f R, %d consecutive losses\n", m.MaxDrawdownR, m.MaxConsecutiveLosses)
	fmt.Printf("trades/year: %.1f, annualized %.4f R\n", m.TradesPerYear, m.AnnualizedR)
}
