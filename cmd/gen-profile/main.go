// Command gen-profile writes a synthetic EV-charger load curve, useful as a
// known overnight-heavy customer when checking the clustering end to end.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/banshee-data/loadprofile/internal/features"
	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/security"
	"github.com/banshee-data/loadprofile/internal/synth"
)

func main() {
	defaults := synth.DefaultOptions()

	dir := flag.String("dir", "data", "output directory")
	id := flag.String("id", "0", "customer id; written as "+loadcurve.DefaultFilePrefix+"<id>.csv, numeric ids padded to five digits")
	start := flag.String("start", defaults.Start.Format("2006-01-02"), "first day (YYYY-MM-DD)")
	end := flag.String("end", defaults.End.Format("2006-01-02"), "day after the last reading (YYYY-MM-DD)")
	step := flag.Duration("step", defaults.Step, "sampling interval")
	noise := flag.Float64("noise", defaults.Noise, "half-width of the uniform multiplicative noise (0 disables)")
	seed := flag.Int64("seed", defaults.Seed, "random seed")
	flag.Parse()

	if err := security.ValidateCustomerID(*id); err != nil {
		log.Fatalf("invalid -id: %v", err)
	}

	o := defaults
	var err error
	if o.Start, err = time.Parse("2006-01-02", *start); err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	if o.End, err = time.Parse("2006-01-02", *end); err != nil {
		log.Fatalf("invalid -end: %v", err)
	}
	if !o.End.After(o.Start) {
		log.Fatalf("-end must be after -start")
	}
	o.Step = *step
	o.Noise = *noise
	o.Seed = *seed

	readings := synth.Generate(synth.EVProfile(), o)

	var buf bytes.Buffer
	if err := loadcurve.WriteCSV(&buf, readings); err != nil {
		log.Fatalf("failed to encode readings: %v", err)
	}
	fsys := fsutil.OSFileSystem{}
	src := loadcurve.NewCSVSource(fsys, *dir)
	path := src.Path(*id)
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("failed to create %s: %v", *dir, err)
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}

	s := synth.Describe(readings, features.DefaultHourSets(), features.DefaultSeasons())
	fmt.Printf("EV profile written to %s\n", path)
	fmt.Printf("   Points: %d\n", s.Points)
	fmt.Printf("   Night average: %.3f kWh\n", s.NightAvg)
	fmt.Printf("   Day average: %.3f kWh\n", s.DayAvg)
	fmt.Printf("   Night/day ratio: %.2f\n", s.NightDayRatio)
	fmt.Printf("   Winter average: %.3f kWh\n", s.WinterAvg)
	fmt.Printf("   Summer average: %.3f kWh\n", s.SummerAvg)
	fmt.Printf("   Winter/summer ratio: %.2f\n", s.WinterSummerRatio)
}
