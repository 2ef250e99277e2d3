package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb-lab/internal/domain"
)

func utc(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func win(start, end string, crosses bool) domain.Window {
	return domain.Window{Start: domain.MustTimeOfDay(start), End: domain.MustTimeOfDay(end), CrossesMidnight: crosses}
}

func TestResolve_SameDay(t *testing.T) {
	r := NewResolver(domain.DefaultVenue)
	got := r.Resolve(domain.MustDate("2024-03-04"), win("09:00", "12:00", false))

	// 09:00 local at UTC+10 is 23:00 UTC the previous day.
	assert.Equal(t, utc("2024-03-03 23:00"), got.From)
	assert.Equal(t, utc("2024-03-04 02:00"), got.To)
}

func TestResolve_StartBeforeDayStartMovesToNextDate(t *testing.T) {
	r := NewResolver(domain.DefaultVenue)
	got := r.Resolve(domain.MustDate("2024-03-04"), win("02:00", "05:00", false))

	// 02:00 local on 2024-03-05.
	assert.Equal(t, utc("2024-03-04 16:00"), got.From)
	assert.Equal(t, utc("2024-03-04 19:00"), got.To)
}

func TestResolve_CrossesMidnight(t *testing.T) {
	r := NewResolver(domain.DefaultVenue)
	got := r.Resolve(domain.MustDate("2024-03-04"), win("23:00", "02:00", true))

	// 23:00 local 03-04 to 02:00 local 03-05.
	assert.Equal(t, utc("2024-03-04 13:00"), got.From)
	assert.Equal(t, utc("2024-03-04 16:00"), got.To)
	assert.Equal(t, 3*time.Hour, got.To.Sub(got.From))
}

func TestResolve_UTCVenue(t *testing.T) {
	r := NewResolver(domain.Venue{UTCOffset: 0, DayStart: domain.MustTimeOfDay("00:00")})
	got := r.Resolve(domain.MustDate("2024-03-04"), win("13:30", "20:00", false))
	assert.Equal(t, utc("2024-03-04 13:30"), got.From)
	assert.Equal(t, utc("2024-03-04 20:00"), got.To)
}

func TestResolve_NegativeOffset(t *testing.T) {
	r := NewResolver(domain.Venue{UTCOffset: -5 * time.Hour, DayStart: domain.MustTimeOfDay("09:00")})
	got := r.Resolve(domain.MustDate("2024-03-04"), win("09:30", "16:00", false))
	assert.Equal(t, utc("2024-03-04 14:30"), got.From)
	assert.Equal(t, utc("2024-03-04 21:00"), got.To)
}

func TestTradingDay(t *testing.T) {
	r := NewResolver(domain.DefaultVenue)
	day := r.TradingDay(domain.MustDate("2024-03-04"))
	assert.Equal(t, utc("2024-03-03 23:00"), day.From)
	assert.Equal(t, utc("2024-03-04 23:00"), day.To)

	// Every resolved window with a valid layout sits inside its trading day.
	for _, w := range []domain.Window{
		win("09:00", "12:00", false),
		win("23:00", "02:00", true),
		win("02:00", "08:59", false),
	} {
		got := r.Resolve(domain.MustDate("2024-03-04"), w)
		assert.False(t, got.From.Before(day.From), w.String())
		assert.False(t, got.To.After(day.To), w.String())
	}
}

func TestTradingDateOf(t *testing.T) {
	r := NewResolver(domain.DefaultVenue)
	assert.Equal(t, domain.MustDate("2024-03-04"), r.TradingDateOf(utc("2024-03-03 23:00")))
	assert.Equal(t, domain.MustDate("2024-03-04"), r.TradingDateOf(utc("2024-03-04 22:59")))
	assert.Equal(t, domain.MustDate("2024-03-05"), r.TradingDateOf(utc("2024-03-04 23:00")))
}

func TestRange(t *testing.T) {
	a := Range{From: utc("2024-03-04 00:00"), To: utc("2024-03-04 02:00")}
	b := Range{From: utc("2024-03-04 01:00"), To: utc("2024-03-04 03:00")}

	assert.True(t, a.Contains(utc("2024-03-04 00:00")))
	assert.False(t, a.Contains(utc("2024-03-04 02:00")))

	i := a.Intersect(b)
	assert.Equal(t, utc("2024-03-04 01:00"), i.From)
	assert.Equal(t, utc("2024-03-04 02:00"), i.To)

	c := Range{From: utc("2024-03-04 05:00"), To: utc("2024-03-04 06:00")}
	assert.True(t, a.Intersect(c).Empty())
}

func TestDates(t *testing.T) {
	dates := Dates(domain.MustDate("2024-02-27"), domain.MustDate("2024-03-02"))
	require.Len(t, dates, 5)
	assert.Equal(t, "2024-02-29", dates[2].String())
	assert.Nil(t, Dates(domain.MustDate("2024-03-02"), domain.MustDate("2024-03-01")))
}
