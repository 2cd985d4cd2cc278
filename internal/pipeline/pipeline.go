// Package pipeline runs a complete clustering pass: list customers, sample,
// extract features, build the matrix, choose K, cluster, label and persist.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/loadprofile/internal/cluster"
	"github.com/banshee-data/loadprofile/internal/config"
	"github.com/banshee-data/loadprofile/internal/features"
	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/labeler"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
	"github.com/banshee-data/loadprofile/internal/results"
	"github.com/banshee-data/loadprofile/internal/timeutil"
)

// Options configures Run. Source is required; every other field has a
// usable zero value.
type Options struct {
	Source loadcurve.Source
	Config *config.ClusteringConfig

	// Sample > 0 clusters a seeded random subset of that many customers.
	Sample int
	// Clusters > 0 fixes K and skips the search.
	Clusters int
	// SearchOnly runs the K search, reports it and stops.
	SearchOnly bool

	// OutputPath receives the JSON artifact; empty skips writing.
	OutputPath string
	FS         fsutil.FileSystem
	Clock      timeutil.Clock

	// Engine overrides the K-means engine built from Config.
	Engine cluster.Clusterer

	// Out receives the search table and cluster summary.
	Out io.Writer
	// ProgressOut receives extraction progress; nil disables it.
	ProgressOut io.Writer
}

// Outcome carries every intermediate product of a run.
type Outcome struct {
	CustomerIDs []string
	Batch       features.BatchReport
	Features    map[string]features.CustomerFeatures
	Matrix      *features.Matrix
	Selection   *cluster.Selection // nil when K was given
	Clustering  *cluster.Result    // nil for SearchOnly
	Silhouette  float64
	Centroids   []CentroidView            // nil for SearchOnly
	Result      *results.ClusteringResult // nil for SearchOnly
}

// CentroidView is an engine centroid mapped back out of the weighted
// feature space.
type CentroidView struct {
	Cluster int
	// Features is the unweighted centroid: 24 normalised shape values, then
	// the scaled seasonal ratio and variability.
	Features []float64
	// Ratio and Variability are approximate; capped columns give lower bounds.
	Ratio       float64
	Variability float64
}

// InterpretCentroids unweights every centroid of res under p.
func InterpretCentroids(res *cluster.Result, p features.Policy) []CentroidView {
	views := make([]CentroidView, res.K)
	for c := 0; c < res.K; c++ {
		row := p.Unweight(mat.Row(nil, c, res.Centroids))
		ratio, variability := p.Interpret(row)
		views[c] = CentroidView{Cluster: c, Features: row, Ratio: ratio, Variability: variability}
	}
	return views
}

// WriteCentroids prints the seasonal ratio and variability each engine
// centroid stands for.
func WriteCentroids(w io.Writer, views []CentroidView) error {
	if _, err := fmt.Fprintln(w, "\nEngine centroids (unweighted):"); err != nil {
		return err
	}
	for _, v := range views {
		if _, err := fmt.Fprintf(w, "  cluster %d: winter/summer ratio ~%.2f, variability ~%.2f\n",
			v.Cluster, v.Ratio, v.Variability); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the pipeline.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("pipeline: no series source")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyClusteringConfig()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	started := clock.Now()

	ids, err := opts.Source.ListCustomers()
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	monitoring.Logf("found %d customer series", len(ids))
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no customer series found", features.ErrEmptyBatch)
	}

	if opts.Sample > 0 && opts.Sample < len(ids) {
		ids = SampleIDs(ids, opts.Sample, cfg.GetSeed())
		monitoring.Logf("sampled %d customers", len(ids))
	}
	outcome := &Outcome{CustomerIDs: ids}

	var progress *monitoring.Progress
	if opts.ProgressOut != nil {
		progress = monitoring.NewProgress(len(ids), cfg.GetProgressEvery(), "files processed")
		progress.Out = opts.ProgressOut
	}
	feats, batch, err := features.ExtractAll(ctx, opts.Source, ids, features.BatchOptions{
		Seasons:  cfg.Seasons(),
		Workers:  cfg.GetWorkers(),
		Progress: progress,
	})
	outcome.Batch = batch
	if err != nil {
		return outcome, err
	}
	outcome.Features = feats
	monitoring.Logf("extracted features for %d customers (%d skipped)", batch.Extracted, len(batch.Skipped))

	m, err := features.BuildMatrix(feats, cfg.Policy())
	if err != nil {
		return outcome, err
	}
	outcome.Matrix = m
	rows, cols := m.X.Dims()
	monitoring.Logf("feature matrix: %d customers x %d features", rows, cols)

	engine := opts.Engine
	if engine == nil {
		engine = cluster.NewKMeans(cfg.ClusterOptions())
	}

	var res *cluster.Result
	if opts.Clusters <= 0 || opts.SearchOnly {
		sel, err := cluster.SelectK(m.X, engine, cfg.GetKMin(), cfg.GetKMax())
		if err != nil {
			return outcome, err
		}
		outcome.Selection = sel
		if err := sel.WriteTable(out); err != nil {
			return outcome, err
		}
		if opts.SearchOnly {
			return outcome, nil
		}
		res = sel.Best
	} else {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		monitoring.Logf("using %d clusters", opts.Clusters)
		res, err = engine.Fit(m.X, opts.Clusters)
		if err != nil {
			return outcome, err
		}
	}
	outcome.Clustering = res
	outcome.Silhouette = cluster.Silhouette(m.X, res.Labels, res.K)
	outcome.Centroids = InterpretCentroids(res, cfg.Policy())

	defs, err := labeler.Label(m.IDs, res.Labels, feats, cfg.Rules())
	if err != nil {
		return outcome, err
	}
	result, err := results.New(clock, m.IDs, res.Labels, defs, res.K, outcome.Silhouette)
	if err != nil {
		return outcome, err
	}
	outcome.Result = result

	if err := result.WriteSummary(out); err != nil {
		return outcome, err
	}
	if err := WriteCentroids(out, outcome.Centroids); err != nil {
		return outcome, err
	}
	if opts.OutputPath != "" {
		if err := result.Save(opts.FS, opts.OutputPath); err != nil {
			return outcome, err
		}
		monitoring.Logf("results saved to %s", opts.OutputPath)
	}
	monitoring.Logf("clustered %d customers in %s", len(m.IDs), clock.Since(started))
	return outcome, nil
}

// SampleIDs draws n ids without replacement using a generator seeded with
// seed and returns them sorted.
func SampleIDs(ids []string, n int, seed int64) []string {
	if n <= 0 || n >= len(ids) {
		return append([]string(nil), ids...)
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	rng := rand.New(rand.NewSource(seed))
	picked := make([]string, n)
	for i, j := range rng.Perm(len(sorted))[:n] {
		picked[i] = sorted[j]
	}
	sort.Strings(picked)
	return picked
}
