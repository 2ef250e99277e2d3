// Package barfeed reads 1-minute OHLCV files and loads them into a bar store.
package barfeed

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"orb-lab/internal/domain"
)

// Feed errors
var (
	ErrMissingColumn = errors.New("missing column")
	ErrMalformedRow  = errors.New("malformed row")
	ErrDuplicateBar  = errors.New("duplicate bar")
)

// Accepted timestamp layouts, tried in order. Layouts without a zone are UTC.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// LoadFile reads a CSV file of bars. See Load.
func LoadFile(path, instrument string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	bars, err := Load(bufio.NewReaderSize(f, 1<<20), instrument)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// Load reads bars from CSV with a header row.
// Required columns: ts, open, high, low, close. Optional: volume, instrument.
// Rows without an instrument column use the given instrument.
// ts is the bar open time, either one of tsLayouts or unix seconds/milliseconds,
// and must fall on a whole minute. Bars are returned ordered by (instrument, ts).
func Load(r io.Reader, instrument string) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}
	if _, ok := cols["instrument"]; !ok && instrument == "" {
		return nil, fmt.Errorf("%w: instrument (no column and no default)", ErrMissingColumn)
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		bar, err := parseRow(rec, cols, instrument)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].Instrument != bars[j].Instrument {
			return bars[i].Instrument < bars[j].Instrument
		}
		return bars[i].TS.Before(bars[j].TS)
	})
	for i := 1; i < len(bars); i++ {
		if bars[i].Instrument == bars[i-1].Instrument && bars[i].TS.Equal(bars[i-1].TS) {
			return nil, fmt.Errorf("%w: %s at %s", ErrDuplicateBar, bars[i].Instrument, bars[i].TS.Format(time.RFC3339))
		}
	}
	return bars, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch name {
		case "timestamp", "time", "datetime":
			name = "ts"
		case "symbol":
			name = "instrument"
		}
		cols[name] = i
	}
	for _, required := range []string{"ts", "open", "high", "low", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}
	return cols, nil
}

func parseRow(rec []string, cols map[string]int, instrument string) (domain.Bar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	bar := domain.Bar{Instrument: instrument}
	if v := field("instrument"); v != "" {
		bar.Instrument = v
	}
	if bar.Instrument == "" {
		return domain.Bar{}, errors.New("empty instrument")
	}

	ts, err := parseTS(field("ts"))
	if err != nil {
		return domain.Bar{}, err
	}
	if !ts.Equal(ts.Truncate(domain.BarInterval)) {
		return domain.Bar{}, fmt.Errorf("ts %s is not on a minute boundary", ts.Format(time.RFC3339Nano))
	}
	bar.TS = ts

	prices := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
	}
	for _, p := range prices {
		v, err := strconv.ParseFloat(field(p.name), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = v
	}
	if v := field("volume"); v != "" {
		if bar.Volume, err = strconv.ParseFloat(v, 64); err != nil {
			return domain.Bar{}, fmt.Errorf("volume: %w", err)
		}
	}

	if bar.Low > bar.High || bar.Open > bar.High || bar.Close > bar.High || bar.Open < bar.Low || bar.Close < bar.Low {
		return domain.Bar{}, fmt.Errorf("inconsistent OHLC %g/%g/%g/%g", bar.Open, bar.High, bar.Low, bar.Close)
	}
	return bar, nil
}

// parseTS accepts the layouts above or a unix epoch in seconds or milliseconds.
func parseTS(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty ts")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ts %q", s)
}
