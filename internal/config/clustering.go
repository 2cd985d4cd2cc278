package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/loadprofile/internal/cluster"
	"github.com/banshee-data/loadprofile/internal/features"
	"github.com/banshee-data/loadprofile/internal/labeler"
)

// DefaultConfigPath is the path to the canonical clustering defaults file.
const DefaultConfigPath = "config/clustering.defaults.json"

// ClusteringConfig holds every tunable of a clustering run. Nil fields fall
// back to the built-in defaults through the Get* accessors, so a partial
// file only overrides what it names.
type ClusteringConfig struct {
	// K search and K-means
	KMin      *int     `json:"k_min,omitempty"`
	KMax      *int     `json:"k_max,omitempty"`
	Seed      *int64   `json:"seed,omitempty"`
	NInit     *int     `json:"n_init,omitempty"`
	MaxIter   *int     `json:"max_iter,omitempty"`
	Tolerance *float64 `json:"tolerance,omitempty"`

	// Feature matrix
	SeasonalScale     *float64 `json:"seasonal_scale,omitempty"`
	VariabilityScale  *float64 `json:"variability_scale,omitempty"`
	FeatureCap        *float64 `json:"feature_cap,omitempty"`
	SeasonalWeight    *float64 `json:"seasonal_weight,omitempty"`
	VariabilityWeight *float64 `json:"variability_weight,omitempty"`
	WinterMonths      []int    `json:"winter_months,omitempty"`
	SummerMonths      []int    `json:"summer_months,omitempty"`

	// Labeler
	HeatPumpRatio      *float64 `json:"heat_pump_ratio,omitempty"`
	CoolingRatio       *float64 `json:"cooling_ratio,omitempty"`
	NightFraction      *float64 `json:"night_fraction,omitempty"`
	NightHours         []int    `json:"night_hours,omitempty"`
	DayHours           []int    `json:"day_hours,omitempty"`
	ResidentialMorning []int    `json:"residential_morning,omitempty"` // [from, to] inclusive
	ResidentialEvening []int    `json:"residential_evening,omitempty"`
	OfficeHours        []int    `json:"office_hours,omitempty"`

	// Batch
	ProgressEvery *int `json:"progress_every,omitempty"`
	Workers       *int `json:"workers,omitempty"`
}

// EmptyClusteringConfig returns a config with every field unset.
func EmptyClusteringConfig() *ClusteringConfig {
	return &ClusteringConfig{}
}

// LoadClusteringConfig loads and validates a JSON config file.
func LoadClusteringConfig(path string) (*ClusteringConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyClusteringConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories so tests can call it from any package. It panics if the file
// cannot be found.
func MustLoadDefaultConfig() *ClusteringConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadClusteringConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks every set field.
func (c *ClusteringConfig) Validate() error {
	kMin, kMax := c.GetKMin(), c.GetKMax()
	if kMin < 1 {
		return fmt.Errorf("k_min must be at least 1, got %d", kMin)
	}
	if kMax < kMin {
		return fmt.Errorf("k_max (%d) must not be below k_min (%d)", kMax, kMin)
	}
	if c.NInit != nil && *c.NInit < 1 {
		return fmt.Errorf("n_init must be positive, got %d", *c.NInit)
	}
	if c.MaxIter != nil && *c.MaxIter < 1 {
		return fmt.Errorf("max_iter must be positive, got %d", *c.MaxIter)
	}
	if c.Tolerance != nil && *c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %f", *c.Tolerance)
	}

	for name, v := range map[string]*float64{
		"seasonal_scale":    c.SeasonalScale,
		"variability_scale": c.VariabilityScale,
		"feature_cap":       c.FeatureCap,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	for name, v := range map[string]*float64{
		"seasonal_weight":    c.SeasonalWeight,
		"variability_weight": c.VariabilityWeight,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	if err := validateMonths("winter_months", c.WinterMonths); err != nil {
		return err
	}
	if err := validateMonths("summer_months", c.SummerMonths); err != nil {
		return err
	}

	if c.GetCoolingRatio() >= c.GetHeatPumpRatio() {
		return fmt.Errorf("cooling_ratio (%f) must be below heat_pump_ratio (%f)", c.GetCoolingRatio(), c.GetHeatPumpRatio())
	}
	if f := c.GetNightFraction(); f < 0 || f > 1 {
		return fmt.Errorf("night_fraction must be between 0 and 1, got %f", f)
	}

	if err := validateHours("night_hours", c.NightHours); err != nil {
		return err
	}
	if err := validateHours("day_hours", c.DayHours); err != nil {
		return err
	}
	for name, r := range map[string][]int{
		"residential_morning": c.ResidentialMorning,
		"residential_evening": c.ResidentialEvening,
		"office_hours":        c.OfficeHours,
	} {
		if r == nil {
			continue
		}
		if len(r) != 2 {
			return fmt.Errorf("%s must be [from, to], got %v", name, r)
		}
		if err := validateHours(name, r); err != nil {
			return err
		}
		if r[0] > r[1] {
			return fmt.Errorf("%s start %d is after end %d", name, r[0], r[1])
		}
	}

	if c.ProgressEvery != nil && *c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be non-negative, got %d", *c.ProgressEvery)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	return nil
}

func validateMonths(name string, months []int) error {
	for _, m := range months {
		if m < 1 || m > 12 {
			return fmt.Errorf("%s contains invalid month %d", name, m)
		}
	}
	return nil
}

func validateHours(name string, hours []int) error {
	for _, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%s contains invalid hour %d", name, h)
		}
	}
	return nil
}

func (c *ClusteringConfig) GetKMin() int {
	if c.KMin == nil {
		return 3 // default
	}
	return *c.KMin
}

func (c *ClusteringConfig) GetKMax() int {
	if c.KMax == nil {
		return 11 // default
	}
	return *c.KMax
}

func (c *ClusteringConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 42 // default
	}
	return *c.Seed
}

func (c *ClusteringConfig) GetNInit() int {
	if c.NInit == nil {
		return 10 // default
	}
	return *c.NInit
}

func (c *ClusteringConfig) GetMaxIter() int {
	if c.MaxIter == nil {
		return 300 // default
	}
	return *c.MaxIter
}

func (c *ClusteringConfig) GetTolerance() float64 {
	if c.Tolerance == nil {
		return 1e-4 // default
	}
	return *c.Tolerance
}

func (c *ClusteringConfig) GetSeasonalScale() float64 {
	if c.SeasonalScale == nil {
		return 4.0
	}
	return *c.SeasonalScale
}

func (c *ClusteringConfig) GetVariabilityScale() float64 {
	if c.VariabilityScale == nil {
		return 2.0
	}
	return *c.VariabilityScale
}

func (c *ClusteringConfig) GetFeatureCap() float64 {
	if c.FeatureCap == nil {
		return 1.5
	}
	return *c.FeatureCap
}

func (c *ClusteringConfig) GetSeasonalWeight() float64 {
	if c.SeasonalWeight == nil {
		return 3.0
	}
	return *c.SeasonalWeight
}

func (c *ClusteringConfig) GetVariabilityWeight() float64 {
	if c.VariabilityWeight == nil {
		return 2.0
	}
	return *c.VariabilityWeight
}

func (c *ClusteringConfig) GetHeatPumpRatio() float64 {
	if c.HeatPumpRatio == nil {
		return 2.5
	}
	return *c.HeatPumpRatio
}

func (c *ClusteringConfig) GetCoolingRatio() float64 {
	if c.CoolingRatio == nil {
		return 0.7
	}
	return *c.CoolingRatio
}

func (c *ClusteringConfig) GetNightFraction() float64 {
	if c.NightFraction == nil {
		return 0.5
	}
	return *c.NightFraction
}

func (c *ClusteringConfig) GetProgressEvery() int {
	if c.ProgressEvery == nil || *c.ProgressEvery == 0 {
		return 50 // default
	}
	return *c.ProgressEvery
}

func (c *ClusteringConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return 1 // default: sequential
	}
	return *c.Workers
}

// Seasons returns the configured winter and summer months.
func (c *ClusteringConfig) Seasons() features.SeasonDefinition {
	s := features.DefaultSeasons()
	if c.WinterMonths != nil {
		s.Winter = toMonths(c.WinterMonths)
	}
	if c.SummerMonths != nil {
		s.Summer = toMonths(c.SummerMonths)
	}
	return s
}

func toMonths(ms []int) []time.Month {
	out := make([]time.Month, len(ms))
	for i, m := range ms {
		out[i] = time.Month(m)
	}
	return out
}

// HourSets returns the configured night and day hours.
func (c *ClusteringConfig) HourSets() features.HourSets {
	hs := features.DefaultHourSets()
	if c.NightHours != nil {
		hs.Night = append([]int(nil), c.NightHours...)
	}
	if c.DayHours != nil {
		hs.Day = append([]int(nil), c.DayHours...)
	}
	return hs
}

// Policy returns the feature matrix normalisation and weighting.
func (c *ClusteringConfig) Policy() features.Policy {
	return features.Policy{
		SeasonalScale:     c.GetSeasonalScale(),
		VariabilityScale:  c.GetVariabilityScale(),
		Cap:               c.GetFeatureCap(),
		SeasonalWeight:    c.GetSeasonalWeight(),
		VariabilityWeight: c.GetVariabilityWeight(),
	}
}

// ClusterOptions returns the K-means engine options.
func (c *ClusteringConfig) ClusterOptions() cluster.Options {
	return cluster.Options{
		Seed:      c.GetSeed(),
		NInit:     c.GetNInit(),
		MaxIter:   c.GetMaxIter(),
		Tolerance: c.GetTolerance(),
	}
}

// Rules returns the labeler thresholds.
func (c *ClusteringConfig) Rules() labeler.Rules {
	r := labeler.DefaultRules()
	r.HeatPumpRatio = c.GetHeatPumpRatio()
	r.CoolingRatio = c.GetCoolingRatio()
	r.NightFraction = c.GetNightFraction()
	r.NightHours = c.HourSets().Night
	if c.ResidentialMorning != nil {
		r.ResidentialRanges[0] = toRange(c.ResidentialMorning)
	}
	if c.ResidentialEvening != nil {
		r.ResidentialRanges[1] = toRange(c.ResidentialEvening)
	}
	if c.OfficeHours != nil {
		r.OfficeRange = toRange(c.OfficeHours)
	}
	return r
}

func toRange(r []int) labeler.HourRange {
	return labeler.HourRange{From: r[0], To: r[1]}
}
