package domain

import "time"

// Bar is one immutable 1-minute OHLCV sample for an instrument.
// TS is the bar open time in UTC; the bar covers [TS, TS+1m).
type Bar struct {
	Instrument string
	TS         time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// BarInterval is the resolution of every bar in the store.
const BarInterval = time.Minute
