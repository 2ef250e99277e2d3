package idhash

import (
	"testing"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name        string
		specID      string
		tradingDate string
		entryTime   int64
		wantLen     int // hash length should be 64
	}{
		{
			name:        "long breakout",
			specID:      "abc123def456",
			tradingDate: "2024-03-04",
			entryTime:   1709510700000,
			wantLen:     64,
		},
		{
			name:        "no trade day",
			specID:      "xyz789ghi012",
			tradingDate: "2024-03-05",
			entryTime:   0,
			wantLen:     64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.specID, tt.tradingDate, tt.entryTime)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeTradeID() length = %d, want %d", len(got), tt.wantLen)
			}

			got2 := ComputeTradeID(tt.specID, tt.tradingDate, tt.entryTime)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	base := ComputeTradeID("spec", "2024-03-04", 1000)

	variants := map[string]string{
		"spec":  ComputeTradeID("spec2", "2024-03-04", 1000),
		"date":  ComputeTradeID("spec", "2024-03-05", 1000),
		"entry": ComputeTradeID("spec", "2024-03-04", 1001),
	}
	for field, got := range variants {
		if got == base {
			t.Errorf("changing %s did not change trade_id", field)
		}
	}
}

func TestComputeSpecID(t *testing.T) {
	a := ComputeSpecID("v1|MGC|CLOSE_BREAK/HALF")
	b := ComputeSpecID("v1|MGC|CLOSE_BREAK/HALF")
	c := ComputeSpecID("v1|MGC|CLOSE_BREAK/FULL")

	if len(a) != 64 {
		t.Fatalf("ComputeSpecID() length = %d, want 64", len(a))
	}
	if a != b {
		t.Errorf("ComputeSpecID() not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Error("different canonical forms produced the same spec_id")
	}
}
