// Package features turns a customer's load curve into a fixed-size
// statistical description and assembles those descriptions into the
// weighted feature matrix used for clustering.
package features

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/loadprofile/internal/loadcurve"
)

// HoursPerDay is the length of an hourly profile.
const HoursPerDay = 24

// CustomerFeatures is the statistical description of one customer's full
// history. It is created once per run and never mutated.
type CustomerFeatures struct {
	// HourlyProfile[h] is the mean of all readings whose timestamp falls in
	// hour-of-day h, or 0 when no reading fell in that hour.
	HourlyProfile [HoursPerDay]float64

	// RatioWinterSummer is mean(winter readings) / mean(summer readings);
	// 1.0 when either set is empty or the summer mean is <= 0.
	RatioWinterSummer float64

	// Variability is the population standard deviation of all readings
	// divided by their mean; 0 when the mean is <= 0.
	Variability float64

	// TotalKWh is the sum of all readings.
	TotalKWh float64
}

// SeasonDefinition names the calendar months that make up winter and summer.
type SeasonDefinition struct {
	Winter []time.Month
	Summer []time.Month
}

// DefaultSeasons returns Nov-Feb winter and Jun-Aug summer.
func DefaultSeasons() SeasonDefinition {
	return SeasonDefinition{
		Winter: []time.Month{time.November, time.December, time.January, time.February},
		Summer: []time.Month{time.June, time.July, time.August},
	}
}

// Extract computes CustomerFeatures from a complete series. Readings are
// bucketed by hour-of-day and month via their timestamps, so any sub-hour
// interval is accepted.
func Extract(readings []loadcurve.Reading, seasons SeasonDefinition) CustomerFeatures {
	var hourSum [HoursPerDay]float64
	var hourCount [HoursPerDay]int
	var monthSum [13]float64
	var monthCount [13]int

	values := make([]float64, len(readings))
	for i, r := range readings {
		h := r.Timestamp.Hour()
		m := r.Timestamp.Month()
		hourSum[h] += r.Value
		hourCount[h]++
		monthSum[m] += r.Value
		monthCount[m]++
		values[i] = r.Value
	}

	var f CustomerFeatures
	for h := 0; h < HoursPerDay; h++ {
		if hourCount[h] > 0 {
			f.HourlyProfile[h] = hourSum[h] / float64(hourCount[h])
		}
	}

	f.RatioWinterSummer = 1.0
	winterSum, winterN := sumMonths(monthSum[:], monthCount[:], seasons.Winter)
	summerSum, summerN := sumMonths(monthSum[:], monthCount[:], seasons.Summer)
	if winterN > 0 && summerN > 0 {
		summerAvg := summerSum / float64(summerN)
		if summerAvg > 0 {
			f.RatioWinterSummer = (winterSum / float64(winterN)) / summerAvg
		}
	}

	if len(values) > 0 {
		mean, std := stat.PopMeanStdDev(values, nil)
		if mean > 0 {
			f.Variability = std / mean
		}
	}
	f.TotalKWh = floats.Sum(values)

	return f
}

func sumMonths(sum []float64, count []int, months []time.Month) (float64, int) {
	var s float64
	var n int
	for _, m := range months {
		if m < time.January || m > time.December {
			continue
		}
		s += sum[m]
		n += count[m]
	}
	return s, n
}

// PeakHour returns the hour index of the profile maximum. Ties resolve to
// the first occurring maximum, so a flat profile peaks at hour 0.
func PeakHour(profile [HoursPerDay]float64) int {
	return floats.MaxIdx(profile[:])
}

// NightDayRatio compares the mean profile value over night hours with the
// mean over day hours. ratio is 1 when the day mean is <= 0.
func NightDayRatio(profile [HoursPerDay]float64, hours HourSets) (nightAvg, dayAvg, ratio float64) {
	nightAvg = meanAt(profile, hours.Night)
	dayAvg = meanAt(profile, hours.Day)
	ratio = 1
	if dayAvg > 0 {
		ratio = nightAvg / dayAvg
	}
	return nightAvg, dayAvg, ratio
}

func meanAt(profile [HoursPerDay]float64, hours []int) float64 {
	if len(hours) == 0 {
		return 0
	}
	var s float64
	for _, h := range hours {
		s += profile[h]
	}
	return s / float64(len(hours))
}

// HourSets holds the fixed overnight and daytime hour sets.
type HourSets struct {
	Night []int
	Day   []int
}

// DefaultHourSets returns night 22h-6h and day 10h-18h.
func DefaultHourSets() HourSets {
	return HourSets{
		Night: []int{22, 23, 0, 1, 2, 3, 4, 5},
		Day:   []int{10, 11, 12, 13, 14, 15, 16, 17},
	}
}

// IsNight reports whether hour h is one of the night hours.
func (hs HourSets) IsNight(h int) bool {
	for _, n := range hs.Night {
		if n == h {
			return true
		}
	}
	return false
}
