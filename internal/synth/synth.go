// Package synth generates synthetic quarter-hour load curves from an hourly
// base profile, monthly seasonal factors and bounded random noise.
package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/loadprofile/internal/features"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
)

// Profile is the deterministic part of a synthetic customer.
type Profile struct {
	// Hourly is the base consumption per interval for each hour of day.
	Hourly [features.HoursPerDay]float64
	// Seasonal[m-1] multiplies every value in month m.
	Seasonal [12]float64
}

// EVSeasonalFactors are the monthly multipliers of an EV owner: stable
// over the year with a slight winter increase.
var EVSeasonalFactors = [12]float64{1.15, 1.12, 1.05, 1.0, 0.98, 0.95, 0.93, 0.95, 1.0, 1.05, 1.10, 1.15}

// EVProfile returns a household that plugs in a car around 19h and charges
// until about 3h, with a low base load while away during the day.
func EVProfile() Profile {
	return Profile{
		Hourly: [features.HoursPerDay]float64{
			9.0, 9.0, 8.5, 4.0, 1.2, 1.2, // 0-5 charging then base
			1.5, 2.0, 1.0, // 6-8 morning
			0.8, 0.8, 0.8, 0.8, 0.8, 0.8, 0.8, 0.8, // 9-16 away
			1.0, 2.5, // 17-18 back home
			9.5, 10.0, 10.0, 9.5, 9.0, // 19-23 plugged in
		},
		Seasonal: EVSeasonalFactors,
	}
}

// FlatProfile returns a constant hourly level with no seasonal variation.
func FlatProfile(level float64) Profile {
	var p Profile
	for h := range p.Hourly {
		p.Hourly[h] = level
	}
	for m := range p.Seasonal {
		p.Seasonal[m] = 1
	}
	return p
}

// WithSeasons returns a copy whose seasonal factors are winter for the
// winter months, summer for the summer months and other elsewhere.
func (p Profile) WithSeasons(seasons features.SeasonDefinition, winter, summer, other float64) Profile {
	for m := range p.Seasonal {
		p.Seasonal[m] = other
	}
	for _, m := range seasons.Winter {
		p.Seasonal[m-1] = winter
	}
	for _, m := range seasons.Summer {
		p.Seasonal[m-1] = summer
	}
	return p
}

// Options controls Generate.
type Options struct {
	Start time.Time
	End   time.Time // exclusive
	Step  time.Duration

	// Noise is the half-width of the uniform multiplicative noise; 0.15
	// draws from [0.85, 1.15]. Zero disables noise.
	Noise float64

	// WeekendBoost multiplies Saturday and Sunday values between
	// WeekendFrom and WeekendTo (inclusive hours).
	WeekendBoost float64
	WeekendFrom  int
	WeekendTo    int

	Seed int64
	// Decimals rounds every value; negative keeps full precision.
	Decimals int
}

// DefaultOptions returns two years of quarter-hour data starting
// 2022-01-01 with ±15% noise, a 1.3 weekend daytime boost (10h-16h) and
// values rounded to 2 decimals.
func DefaultOptions() Options {
	return Options{
		Start:        time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Step:         15 * time.Minute,
		Noise:        0.15,
		WeekendBoost: 1.3,
		WeekendFrom:  10,
		WeekendTo:    16,
		Seed:         1,
		Decimals:     2,
	}
}

// Generate produces the series for p. The same Options always yield the
// same readings.
func Generate(p Profile, o Options) []loadcurve.Reading {
	if o.Step <= 0 || !o.Start.Before(o.End) {
		return nil
	}
	rng := rand.New(rand.NewSource(o.Seed))
	scale := math.Pow(10, float64(o.Decimals))

	n := int(o.End.Sub(o.Start) / o.Step)
	out := make([]loadcurve.Reading, 0, n+1)
	for ts := o.Start; ts.Before(o.End); ts = ts.Add(o.Step) {
		h := ts.Hour()
		v := p.Hourly[h] * p.Seasonal[ts.Month()-1]

		noise := 1.0
		if o.Noise > 0 {
			noise = 1 - o.Noise + rng.Float64()*2*o.Noise
		}
		if o.WeekendBoost > 0 && isWeekend(ts) && h >= o.WeekendFrom && h <= o.WeekendTo {
			noise *= o.WeekendBoost
		}
		v *= noise

		if o.Decimals >= 0 {
			v = math.Round(v*scale) / scale
		}
		out = append(out, loadcurve.Reading{Timestamp: ts, Value: v})
	}
	return out
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Summary describes a generated series.
type Summary struct {
	Points            int
	NightAvg          float64
	DayAvg            float64
	NightDayRatio     float64
	WinterAvg         float64
	SummerAvg         float64
	WinterSummerRatio float64
}

// Describe computes night/day and winter/summer averages of a series.
func Describe(readings []loadcurve.Reading, hours features.HourSets, seasons features.SeasonDefinition) Summary {
	f := features.Extract(readings, seasons)
	s := Summary{Points: len(readings), WinterSummerRatio: f.RatioWinterSummer}
	s.NightAvg, s.DayAvg, s.NightDayRatio = features.NightDayRatio(f.HourlyProfile, hours)

	s.WinterAvg = monthsAvg(readings, seasons.Winter)
	s.SummerAvg = monthsAvg(readings, seasons.Summer)
	return s
}

func monthsAvg(readings []loadcurve.Reading, months []time.Month) float64 {
	in := make(map[time.Month]bool, len(months))
	for _, m := range months {
		in[m] = true
	}
	var sum float64
	var n int
	for _, r := range readings {
		if in[r.Timestamp.Month()] {
			sum += r.Value
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
