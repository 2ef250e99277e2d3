package verification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
	"orb-lab/internal/simulation"
	"orb-lab/internal/storage"
	"orb-lab/internal/storage/memory"
)

func localBar(date, hhmm string, open, high, low, close float64) domain.Bar {
	d := domain.MustDate(date)
	ts := d.Time.Add(domain.MustTimeOfDay(hhmm).Offset()).Add(-domain.DefaultVenue.UTCOffset)
	return domain.Bar{Instrument: "MGC", TS: ts, Open: open, High: high, Low: low, Close: close, Volume: 1}
}

func breakoutDay(date string) []domain.Bar {
	var bars []domain.Bar
	for m := 0; m < 15; m++ {
		bars = append(bars, localBar(date, fmt.Sprintf("09:%02d", m), 2025, 2030, 2020, 2025))
	}
	return append(bars,
		localBar(date, "09:15", 2029, 2031.5, 2028, 2031),
		localBar(date, "09:16", 2031, 2043, 2028, 2042),
	)
}

func spec(t *testing.T, rr float64) domain.CandidateSpec {
	t.Helper()
	s, err := domain.NewCandidateSpec(domain.CandidateSpec{
		Instrument: "MGC",
		ORBStart:   domain.MustTimeOfDay("09:00"),
		ORBMinutes: 15,
		EntryRule:  domain.EntryCloseBreak,
		StopMode:   domain.StopHalf,
		RR:         rr,
		Scan:       domain.Window{Start: domain.MustTimeOfDay("09:15"), End: domain.MustTimeOfDay("12:00")},
	})
	require.NoError(t, err)
	return s
}

type fixture struct {
	stores *storage.Stores
	bars   *memory.BarStore
	run    *domain.Run
}

// newFixture records one scored candidate per rr and one invalid candidate
// without metrics.
func newFixture(t *testing.T, rrs ...float64) *fixture {
	t.Helper()
	ctx := context.Background()

	bars := memory.NewBarStore()
	require.NoError(t, bars.InsertBulk(ctx, breakoutDay("2024-03-04")))
	require.NoError(t, bars.InsertBulk(ctx, breakoutDay("2024-03-06")))

	stores := memory.NewStores()
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	run := &domain.Run{
		RunID:     "run-1",
		StartedAt: now,
		UpdatedAt: now,
		Status:    domain.RunStatusCompleted,
		Config: domain.RunConfig{
			StartDate: domain.MustDate("2024-03-04"),
			EndDate:   domain.MustDate("2024-03-06"),
		},
	}
	require.NoError(t, stores.Runs.Insert(ctx, run))

	sim := simulation.NewRunner(simulation.RunnerOptions{BarStore: bars, Logger: zerolog.Nop()})
	for i, rr := range rrs {
		s := spec(t, rr)
		res, err := sim.Run(ctx, s, run.Config.StartDate, run.Config.EndDate)
		require.NoError(t, err)
		metrics := res.Metrics
		require.NoError(t, stores.Candidates.Record(ctx, &domain.CandidateResult{
			RunID:     run.RunID,
			SpecID:    s.SpecID(),
			Position:  uint64(i),
			Spec:      s,
			Metrics:   &metrics,
			Status:    domain.CandidateTested,
			CreatedAt: now,
		}, nil))
	}

	invalid := spec(t, 9)
	require.NoError(t, stores.Candidates.Record(ctx, &domain.CandidateResult{
		RunID:     run.RunID,
		SpecID:    invalid.SpecID(),
		Position:  uint64(len(rrs)),
		Spec:      invalid,
		Status:    domain.CandidateInvalid,
		Error:     "scan window empty",
		CreatedAt: now,
	}, nil))

	return &fixture{stores: stores, bars: bars, run: run}
}

func (f *fixture) verifier(candidates storage.CandidateStore) *ReplayVerifier {
	if candidates == nil {
		candidates = f.stores.Candidates
	}
	return NewReplayVerifier(ReplayVerifierOptions{
		Runs:       f.stores.Runs,
		Candidates: candidates,
		BarStore:   f.bars,
		Logger:     zerolog.Nop(),
	})
}

// tamperedStore inflates TotalR of every candidate it returns.
type tamperedStore struct {
	storage.CandidateStore
}

func (s tamperedStore) tamper(c *domain.CandidateResult) {
	if c.Metrics != nil {
		m := *c.Metrics
		m.TotalR += 0.5
		m.Trades++
		c.Metrics = &m
	}
}

func (s tamperedStore) Get(ctx context.Context, runID, specID string) (*domain.CandidateResult, error) {
	c, err := s.CandidateStore.Get(ctx, runID, specID)
	if err == nil {
		s.tamper(c)
	}
	return c, err
}

func (s tamperedStore) ListByRun(ctx context.Context, runID string) ([]*domain.CandidateResult, error) {
	rows, err := s.CandidateStore.ListByRun(ctx, runID)
	for _, c := range rows {
		s.tamper(c)
	}
	return rows, err
}

func TestCompareResultRows_Identical(t *testing.T) {
	row := domain.ResultRow{
		SpecID:      "abc",
		Trades:      4,
		Wins:        3,
		WinRate:     0.75,
		ExpectancyR: 1.25,
		NoTrades:    map[domain.NoTradeReason]int{},
	}
	other := row
	other.NoTrades = nil
	other.ExpectancyR += FloatTolerance / 2

	assert.Empty(t, CompareResultRows(row, other))
}

func TestCompareResultRows_ReportsEachField(t *testing.T) {
	stored := domain.ResultRow{SpecID: "abc", Trades: 4, TotalR: 2}
	replayed := domain.ResultRow{SpecID: "abc", Trades: 5, TotalR: 2.001}

	divs := CompareResultRows(stored, replayed)
	require.Len(t, divs, 2)
	assert.Equal(t, FieldDivergence{Field: "Trades", Expected: 4, Actual: 5}, divs[0])
	assert.Equal(t, "TotalR", divs[1].Field)
}

func TestVerifyRun_Matches(t *testing.T) {
	f := newFixture(t, 1, 2)

	report, err := f.verifier(nil).VerifyRun(context.Background(), "run-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 0, report.Divergent)
	assert.Equal(t, 1, report.Skipped)
	for _, r := range report.Results {
		assert.True(t, r.Match, r.SpecID)
	}
}

func TestVerifyRun_Limit(t *testing.T) {
	f := newFixture(t, 1, 2, 3)

	report, err := f.verifier(nil).VerifyRun(context.Background(), "run-1", 2)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	require.Len(t, report.Results, 2)
	assert.Equal(t, uint64(0), report.Results[0].Position)
	assert.Equal(t, uint64(1), report.Results[1].Position)
}

func TestVerifyRun_DetectsDivergence(t *testing.T) {
	f := newFixture(t, 1)

	report, err := f.verifier(tamperedStore{f.stores.Candidates}).VerifyRun(context.Background(), "run-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Divergent)
	require.Len(t, report.Results, 1)
	fields := make([]string, 0)
	for _, d := range report.Results[0].Divergences {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"Trades", "TotalR"}, fields)
}

func TestVerifyRun_UnknownRun(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier(nil).VerifyRun(context.Background(), "missing", 0)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestVerifyCandidate(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	res, err := f.verifier(nil).VerifyCandidate(ctx, "run-1", spec(t, 2).SpecID())
	require.NoError(t, err)
	assert.True(t, res.Match)

	_, err = f.verifier(nil).VerifyCandidate(ctx, "run-1", spec(t, 9).SpecID())
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))

	_, err = f.verifier(nil).VerifyCandidate(ctx, "run-1", "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
