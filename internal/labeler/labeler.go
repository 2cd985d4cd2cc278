// Package labeler names clusters after the statistics of their members'
// raw features using fixed business thresholds.
package labeler

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/loadprofile/internal/features"
)

// Archetype names, in rule priority order.
const (
	NameHeatPump    = "heat-pump-like"
	NameCooling     = "cooling-like"
	NameEVCharger   = "EV-charger-like"
	NameResidential = "classic-residential"
	NameOffice      = "daytime/office-like"
	NameMixed       = "mixed/no dominant pattern"
)

// HourRange is an inclusive range of hours of day.
type HourRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Contains reports whether h lies within the range, bounds included.
func (r HourRange) Contains(h float64) bool {
	return h >= float64(r.From) && h <= float64(r.To)
}

func (r HourRange) String() string {
	return fmt.Sprintf("%dh-%dh", r.From, r.To)
}

// Rules holds the naming thresholds. Rules are evaluated in a fixed order
// and the first match wins, so overlapping hour ranges resolve to the
// earlier rule.
type Rules struct {
	HeatPumpRatio     float64     // avg winter/summer ratio above this is heat-pump-like
	CoolingRatio      float64     // avg winter/summer ratio below this is cooling-like
	NightFraction     float64     // share of night-peaking members above this is EV-like
	NightHours        []int       // hours counted as a night peak
	ResidentialRanges []HourRange // average peak hour in any of these is residential
	OfficeRange       HourRange   // average peak hour in this is office-like
}

// DefaultRules returns the thresholds 2.5 / 0.7 / 0.5, night hours
// 22h-5h, residential peaks 6-9 or 17-21 and office hours 9-17.
func DefaultRules() Rules {
	return Rules{
		HeatPumpRatio:     2.5,
		CoolingRatio:      0.7,
		NightFraction:     0.5,
		NightHours:        features.DefaultHourSets().Night,
		ResidentialRanges: []HourRange{{From: 6, To: 9}, {From: 17, To: 21}},
		OfficeRange:       HourRange{From: 9, To: 17},
	}
}

// Stats summarises the members of one cluster.
type Stats struct {
	Count       int
	AvgRatio    float64
	AvgProfile  [features.HoursPerDay]float64
	PeakHours   []int
	AvgPeakHour float64
	// NightFraction is the share of members whose own peak hour is a night hour.
	NightFraction float64
}

// Summarize computes cluster statistics from the members' raw features.
func Summarize(members []features.CustomerFeatures, rules Rules) Stats {
	s := Stats{Count: len(members)}
	if len(members) == 0 {
		return s
	}

	ratios := make([]float64, len(members))
	peaks := make([]float64, len(members))
	night := features.HourSets{Night: rules.NightHours}
	nightPeaks := 0
	for i, m := range members {
		ratios[i] = m.RatioWinterSummer
		floats.Add(s.AvgProfile[:], m.HourlyProfile[:])

		h := features.PeakHour(m.HourlyProfile)
		s.PeakHours = append(s.PeakHours, h)
		peaks[i] = float64(h)
		if night.IsNight(h) {
			nightPeaks++
		}
	}
	floats.Scale(1/float64(len(members)), s.AvgProfile[:])

	s.AvgRatio = stat.Mean(ratios, nil)
	s.AvgPeakHour = stat.Mean(peaks, nil)
	s.NightFraction = float64(nightPeaks) / float64(len(members))
	return s
}

// Name applies the rules to cluster statistics and returns the archetype
// name with a description of the metric that triggered it.
func (r Rules) Name(s Stats) (name, description string) {
	switch {
	case s.AvgRatio > r.HeatPumpRatio:
		return NameHeatPump, fmt.Sprintf("strong seasonality (winter/summer ratio: %.1f)", s.AvgRatio)
	case s.AvgRatio < r.CoolingRatio:
		return NameCooling, fmt.Sprintf("summer consumption above winter (ratio: %.1f)", s.AvgRatio)
	case s.NightFraction > r.NightFraction:
		return NameEVCharger, fmt.Sprintf("overnight consumption peak for %.0f%% of members", s.NightFraction*100)
	}
	for _, rg := range r.ResidentialRanges {
		if rg.Contains(s.AvgPeakHour) {
			return NameResidential, fmt.Sprintf("typical morning and evening peaks (average peak %.1fh)", s.AvgPeakHour)
		}
	}
	if r.OfficeRange.Contains(s.AvgPeakHour) {
		return NameOffice, fmt.Sprintf("high daytime consumption (average peak %.1fh)", s.AvgPeakHour)
	}
	return NameMixed, fmt.Sprintf("no dominant pattern (average peak %.1fh)", s.AvgPeakHour)
}

// ClusterDefinition is the persisted description of one cluster.
type ClusterDefinition struct {
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Count                int       `json:"count"`
	AvgRatioWinterSummer float64   `json:"avg_ratio_winter_summer"`
	Centroid             []float64 `json:"centroid"`
}

// Define builds the definition for one cluster: ratio rounded to 2
// decimals and the 24-hour average profile rounded to 3.
func Define(members []features.CustomerFeatures, rules Rules) ClusterDefinition {
	s := Summarize(members, rules)
	name, desc := rules.Name(s)
	centroid := make([]float64, features.HoursPerDay)
	for h, v := range s.AvgProfile {
		centroid[h] = round(v, 3)
	}
	return ClusterDefinition{
		Name:                 name,
		Description:          desc,
		Count:                s.Count,
		AvgRatioWinterSummer: round(s.AvgRatio, 2),
		Centroid:             centroid,
	}
}

// Label groups customers by assigned cluster and defines every populated
// cluster. ids[i] is the customer for labels[i].
func Label(ids []string, labels []int, feats map[string]features.CustomerFeatures, rules Rules) (map[int]ClusterDefinition, error) {
	if len(ids) != len(labels) {
		return nil, fmt.Errorf("label count %d does not match customer count %d", len(labels), len(ids))
	}

	groups := make(map[int][]features.CustomerFeatures)
	for i, id := range ids {
		f, ok := feats[id]
		if !ok {
			return nil, fmt.Errorf("no features for customer %s", id)
		}
		groups[labels[i]] = append(groups[labels[i]], f)
	}

	defs := make(map[int]ClusterDefinition, len(groups))
	for label, members := range groups {
		defs[label] = Define(members, rules)
	}
	return defs, nil
}

// SortedLabels returns the cluster ids of defs in ascending order.
func SortedLabels(defs map[int]ClusterDefinition) []int {
	labels := make([]int, 0, len(defs))
	for l := range defs {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
