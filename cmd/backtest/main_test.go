package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
)

func TestParseWindow(t *testing.T) {
	w, err := parseWindow("09:15-17:00")
	require.NoError(t, err)
	assert.Equal(t, domain.Window{Start: domain.MustTimeOfDay("09:15"), End: domain.MustTimeOfDay("17:00")}, w)

	w, err = parseWindow("22:00-02:00+1")
	require.NoError(t, err)
	assert.True(t, w.CrossesMidnight)
	assert.Equal(t, "22:00-02:00+1", w.String())

	for _, bad := range []string{"0915", "17:00-09:00", "09:00-25:00"} {
		_, err := parseWindow(bad)
		assert.Error(t, err, bad)
	}
}

func TestSpecFromFlags(t *testing.T) {
	spec, err := specFromFlags("MGC", "09:00", 15, "next_open", "full", 1.5, "09:15-12:00")
	require.NoError(t, err)
	assert.Equal(t, domain.Kind{Entry: domain.EntryNextOpen, Stop: domain.StopFull}, spec.Kind())
	assert.NotEmpty(t, spec.SpecID())

	_, err = specFromFlags("MGC", "09:00", 15, "MARKET", "HALF", 2, "09:15-12:00")
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}
