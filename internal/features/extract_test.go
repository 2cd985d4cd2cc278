package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/loadprofile/internal/loadcurve"
)

// series builds quarter-hour readings from start to end using value(t).
func series(start, end time.Time, value func(time.Time) float64) []loadcurve.Reading {
	var out []loadcurve.Reading
	for ts := start; ts.Before(end); ts = ts.Add(15 * time.Minute) {
		out = append(out, loadcurve.Reading{Timestamp: ts, Value: value(ts)})
	}
	return out
}

func TestExtract_HourlyProfileIsMeanPerHour(t *testing.T) {
	// One day of hourly readings where hour h carries the value h.
	base := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	var readings []loadcurve.Reading
	for h := 0; h < HoursPerDay; h++ {
		readings = append(readings, loadcurve.Reading{Timestamp: base.Add(time.Duration(h) * time.Hour), Value: float64(h)})
	}

	f := Extract(readings, DefaultSeasons())
	for h := 0; h < HoursPerDay; h++ {
		assert.Equal(t, float64(h), f.HourlyProfile[h], "hour %d", h)
	}
	assert.Equal(t, 276.0, f.TotalKWh)
	// Neither winter nor summer is present.
	assert.Equal(t, 1.0, f.RatioWinterSummer)
}

func TestExtract_MissingHoursAreZero(t *testing.T) {
	base := time.Date(2023, 3, 1, 5, 0, 0, 0, time.UTC)
	readings := []loadcurve.Reading{
		{Timestamp: base, Value: 2},
		{Timestamp: base.Add(15 * time.Minute), Value: 4},
	}
	f := Extract(readings, DefaultSeasons())
	assert.Equal(t, 3.0, f.HourlyProfile[5])
	assert.Equal(t, 0.0, f.HourlyProfile[6])
}

func TestExtract_SeasonalRatio(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	readings := series(start, end, func(ts time.Time) float64 {
		switch ts.Month() {
		case time.November, time.December, time.January, time.February:
			return 3
		case time.June, time.July, time.August:
			return 1
		}
		return 2
	})

	f := Extract(readings, DefaultSeasons())
	assert.InDelta(t, 3.0, f.RatioWinterSummer, 1e-12)
	assert.Greater(t, f.Variability, 0.0)
}

func TestExtract_RatioDefaults(t *testing.T) {
	winterOnly := series(
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		func(time.Time) float64 { return 5 },
	)
	assert.Equal(t, 1.0, Extract(winterOnly, DefaultSeasons()).RatioWinterSummer)

	zeroSummer := append(winterOnly, series(
		time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 7, 2, 0, 0, 0, 0, time.UTC),
		func(time.Time) float64 { return 0 },
	)...)
	assert.Equal(t, 1.0, Extract(zeroSummer, DefaultSeasons()).RatioWinterSummer)
}

func TestExtract_Variability(t *testing.T) {
	base := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	readings := []loadcurve.Reading{
		{Timestamp: base, Value: 1},
		{Timestamp: base.Add(time.Hour), Value: 3},
	}
	// mean 2, population std 1
	assert.InDelta(t, 0.5, Extract(readings, DefaultSeasons()).Variability, 1e-12)

	zeros := []loadcurve.Reading{{Timestamp: base, Value: 0}, {Timestamp: base.Add(time.Hour), Value: 0}}
	f := Extract(zeros, DefaultSeasons())
	assert.Equal(t, 0.0, f.Variability)
	assert.False(t, math.IsNaN(f.Variability))
}

func TestExtract_EmptySeries(t *testing.T) {
	f := Extract(nil, DefaultSeasons())
	assert.Equal(t, CustomerFeatures{RatioWinterSummer: 1.0}, f)
}

func TestPeakHour(t *testing.T) {
	var flat [HoursPerDay]float64
	for h := range flat {
		flat[h] = 1
	}
	assert.Equal(t, 0, PeakHour(flat))

	evening := flat
	evening[19] = 4
	evening[20] = 4
	assert.Equal(t, 19, PeakHour(evening))
}

func TestNightDayRatio(t *testing.T) {
	var profile [HoursPerDay]float64
	hours := DefaultHourSets()
	for _, h := range hours.Night {
		profile[h] = 6
	}
	for _, h := range hours.Day {
		profile[h] = 2
	}
	night, day, ratio := NightDayRatio(profile, hours)
	assert.Equal(t, 6.0, night)
	assert.Equal(t, 2.0, day)
	assert.Equal(t, 3.0, ratio)

	var empty [HoursPerDay]float64
	_, _, ratio = NightDayRatio(empty, hours)
	assert.Equal(t, 1.0, ratio)
}

func TestHourSets_IsNight(t *testing.T) {
	hours := DefaultHourSets()
	for _, h := range []int{22, 23, 0, 5} {
		assert.True(t, hours.IsNight(h), "hour %d", h)
	}
	for _, h := range []int{6, 12, 21} {
		assert.False(t, hours.IsNight(h), "hour %d", h)
	}
	require.Len(t, hours.Day, 8)
}
