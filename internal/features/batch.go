package features

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
)

// ErrEmptyBatch is returned when no customer survives extraction.
var ErrEmptyBatch = errors.New("no customers survived feature extraction")

// SkipReason classifies why a customer was excluded from a batch.
type SkipReason string

const (
	SkipNotFound  SkipReason = "not_found"
	SkipMalformed SkipReason = "malformed"
	SkipOther     SkipReason = "error"
)

// Skipped records one excluded customer.
type Skipped struct {
	CustomerID string
	Reason     SkipReason
	Err        error
}

// BatchReport counts the outcome of a batch extraction.
type BatchReport struct {
	Requested int
	Extracted int
	Skipped   []Skipped
}

// Count returns how many customers were skipped for reason.
func (r BatchReport) Count(reason SkipReason) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// BatchOptions controls ExtractAll.
type BatchOptions struct {
	Seasons SeasonDefinition
	// Workers > 1 extracts customers concurrently. Results are identical
	// to a sequential run.
	Workers  int
	Progress *monitoring.Progress
}

// ExtractAll reads and extracts features for every id. Per-customer
// failures are logged and recorded in the report without aborting the
// batch. It returns ErrEmptyBatch if nothing was extracted.
func ExtractAll(ctx context.Context, src loadcurve.Source, ids []string, opts BatchOptions) (map[string]CustomerFeatures, BatchReport, error) {
	report := BatchReport{Requested: len(ids)}
	if opts.Progress != nil {
		opts.Progress.Total = len(ids)
	}

	type outcome struct {
		features CustomerFeatures
		err      error
	}
	outcomes := make([]outcome, len(ids))

	extractOne := func(i int) {
		readings, err := src.ReadSeries(ids[i])
		if err != nil {
			outcomes[i].err = err
			return
		}
		outcomes[i].features = Extract(readings, opts.Seasons)
	}

	if opts.Workers > 1 {
		var mu sync.Mutex
		done := 0
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i := range ids {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				extractOne(i)
				mu.Lock()
				opts.Progress.Step(done)
				done++
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, report, err
		}
	} else {
		for i := range ids {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
			extractOne(i)
			opts.Progress.Step(i)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	out := make(map[string]CustomerFeatures, len(ids))
	for i, id := range ids {
		if err := outcomes[i].err; err != nil {
			reason := SkipOther
			switch {
			case errors.Is(err, loadcurve.ErrNotFound):
				reason = SkipNotFound
			case errors.Is(err, loadcurve.ErrMalformedRecord):
				reason = SkipMalformed
			}
			monitoring.Logf("warning: skipping customer %s (%s): %v", id, reason, err)
			report.Skipped = append(report.Skipped, Skipped{CustomerID: id, Reason: reason, Err: err})
			continue
		}
		out[id] = outcomes[i].features
	}
	report.Extracted = len(out)

	if len(out) == 0 {
		return nil, report, fmt.Errorf("%w (%d requested, %d skipped)", ErrEmptyBatch, len(ids), len(report.Skipped))
	}
	return out, report, nil
}

// SortedIDs returns the keys of a feature map in ascending order.
func SortedIDs(feats map[string]CustomerFeatures) []string {
	ids := make([]string, 0, len(feats))
	for id := range feats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
