package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/config"
	"orb-lab/internal/domain"
)

func TestOpenStores_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "db", "research.db")}

	stores, err := OpenStores(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer stores.Close()

	runs, err := stores.Runs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestOpenStores_Memory(t *testing.T) {
	stores, err := OpenStores(context.Background(), &config.Config{Store: config.StoreMemory}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, stores.Close())
}

func TestOpenStores_Unknown(t *testing.T) {
	_, err := OpenStores(context.Background(), &config.Config{Store: "mongo"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenBars_CSV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("ts,open,high,low,close\n2024-03-04 23:00:00,1,2,1,1\n2024-03-04 23:01:00,1,2,1,2\n"), 0o644))

	bars, err := OpenBars(ctx, &config.Config{BarSource: config.BarsCSV, BarsCSV: path, BarsInstrument: "MGC"}, zerolog.Nop())
	require.NoError(t, err)
	defer bars.Close()

	from := time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)
	got, err := bars.GetRange(ctx, "MGC", from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Bar{Instrument: "MGC", TS: from, Open: 1, High: 2, Low: 1, Close: 1}, got[0])
}

func TestOpenBars_MissingSettings(t *testing.T) {
	_, err := OpenBars(context.Background(), &config.Config{BarSource: config.BarsCSV}, zerolog.Nop())
	assert.Error(t, err)
}
