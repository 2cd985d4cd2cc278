// Command find-ev ranks customers by night/day consumption ratio to spot
// likely overnight EV charging.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/banshee-data/loadprofile/internal/config"
	"github.com/banshee-data/loadprofile/internal/features"
	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
)

type candidate struct {
	ID       string
	NightAvg float64
	DayAvg   float64
	Ratio    float64
	PeakHour int
}

// scan profiles the first limit customers (all when limit <= 0) and returns
// them ordered by night/day ratio, highest first. Unreadable customers are
// logged and skipped.
func scan(src loadcurve.Source, limit int, hours features.HourSets, seasons features.SeasonDefinition) ([]candidate, error) {
	ids, err := src.ListCustomers()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	out := make([]candidate, 0, len(ids))
	for _, id := range ids {
		readings, err := src.ReadSeries(id)
		if err != nil {
			monitoring.Logf("skipping customer %s: %v", id, err)
			continue
		}
		f := features.Extract(readings, seasons)
		c := candidate{ID: id, PeakHour: features.PeakHour(f.HourlyProfile)}
		c.NightAvg, c.DayAvg, c.Ratio = features.NightDayRatio(f.HourlyProfile, hours)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	return out, nil
}

func printCandidates(w io.Writer, cands []candidate, top int) {
	if top > len(cands) {
		top = len(cands)
	}
	fmt.Fprintf(w, "Top %d customers by night/day ratio:\n", top)
	for i, c := range cands[:top] {
		fmt.Fprintf(w, "%2d. %s  ratio=%.2f  night=%.3f  day=%.3f  peak=%dh\n",
			i+1, c.ID, c.Ratio, c.NightAvg, c.DayAvg, c.PeakHour)
	}
}

func main() {
	env := config.LoadEnv()

	dataDir := flag.String("data", env.DataDir, "directory of "+loadcurve.DefaultFilePrefix+"<id>.csv load curves")
	limit := flag.Int("n", 100, "scan the first N customers (0 = all)")
	top := flag.Int("top", 10, "number of candidates to print")
	configPath := flag.String("config", env.ConfigPath, "clustering config JSON for hour and season sets (optional)")
	flag.Parse()

	cfg := config.EmptyClusteringConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadClusteringConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	fsys := fsutil.OSFileSystem{}
	if !fsys.Exists(*dataDir) {
		log.Fatalf("data directory %s does not exist", *dataDir)
	}
	cands, err := scan(loadcurve.NewCSVSource(fsys, *dataDir), *limit, cfg.HourSets(), cfg.Seasons())
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	printCandidates(os.Stdout, cands, *top)
}
