package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"orb-lab/internal/domain"
)

// setupTestDB creates a PostgreSQL container and returns a migrated pool.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, connStr)
	require.NoError(t, err)

	runMigrations(t, pool)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the SQL files under internal/storage/migrations/postgres.
// The migrations package imports this one, so the files are read from disk.
func runMigrations(t *testing.T, pool *Pool) {
	t.Helper()

	dir := filepath.Join("..", "migrations", "postgres")
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no migrations found in %s", dir)
	sort.Strings(files)

	for _, f := range files {
		content, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(context.Background(), string(content))
		require.NoError(t, err, "failed to apply migration %s", f)
	}
}

// Postgres keeps microseconds; fixtures use whole seconds.
var t0 = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func testRun(runID string) *domain.Run {
	cfg := domain.RunConfig{
		StartDate: domain.MustDate("2024-01-01"),
		EndDate:   domain.MustDate("2024-03-31"),
		Mode:      domain.SearchGrid,
		Space: domain.SearchSpace{
			Instruments: []string{"MGC"},
			ORBStarts:   []domain.TimeOfDay{domain.MustTimeOfDay("09:00")},
			ORBMinutes:  []int{15},
			EntryRules:  []domain.EntryRule{domain.EntryCloseBreak},
			StopModes:   []domain.StopMode{domain.StopHalf},
			RRs:         []float64{1, 2},
			ScanWindows: []domain.Window{{Start: domain.MustTimeOfDay("09:15"), End: domain.MustTimeOfDay("12:00")}},
		},
	}.WithDefaults()
	return &domain.Run{
		RunID:     runID,
		StartedAt: t0,
		Status:    domain.RunStatusRunning,
		Config:    cfg,
		UpdatedAt: t0,
	}
}

func testSpec(t *testing.T, rr float64) domain.CandidateSpec {
	t.Helper()
	spec, err := domain.NewCandidateSpec(domain.CandidateSpec{
		Instrument: "MGC",
		ORBStart:   domain.MustTimeOfDay("09:00"),
		ORBMinutes: 15,
		EntryRule:  domain.EntryCloseBreak,
		StopMode:   domain.StopHalf,
		RR:         rr,
		Scan:       domain.Window{Start: domain.MustTimeOfDay("09:15"), End: domain.MustTimeOfDay("12:00")},
	})
	require.NoError(t, err)
	return spec
}

func testCandidate(t *testing.T, runID string, position uint64, rr float64) *domain.CandidateResult {
	t.Helper()
	spec := testSpec(t, rr)
	return &domain.CandidateResult{
		RunID:    runID,
		SpecID:   spec.SpecID(),
		Position: position,
		Spec:     spec,
		Metrics: &domain.ResultRow{
			SpecID:      spec.SpecID(),
			Trades:      40,
			Wins:        22,
			Losses:      18,
			NoTrades:    map[domain.NoTradeReason]int{domain.NoTradeNoBreakout: 3},
			ExpectancyR: 0.2,
		},
		Status:    domain.CandidateTested,
		CreatedAt: t0,
	}
}
