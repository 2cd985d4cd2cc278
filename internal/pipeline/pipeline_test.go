package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/loadprofile/internal/cluster"
	"github.com/banshee-data/loadprofile/internal/features"
	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/labeler"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
	"github.com/banshee-data/loadprofile/internal/results"
	"github.com/banshee-data/loadprofile/internal/synth"
	"github.com/banshee-data/loadprofile/internal/timeutil"
)

// One calendar year of hourly, noise-free readings.
func fixtureOptions() synth.Options {
	o := synth.DefaultOptions()
	o.Start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	o.End = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o.Step = time.Hour
	o.Noise = 0
	o.WeekendBoost = 0
	o.Decimals = -1
	return o
}

// flat: 1.0 every hour all year.
func flatCustomer(level float64) []loadcurve.Reading {
	return synth.Generate(synth.FlatProfile(level), fixtureOptions())
}

// evening and overnight hours ten times the rest, no seasonality.
func evCustomer(level float64) []loadcurve.Reading {
	p := synth.FlatProfile(level)
	for _, h := range []int{0, 1, 2, 3, 19, 20, 21, 22, 23} {
		p.Hourly[h] = 10 * level
	}
	return synth.Generate(p, fixtureOptions())
}

// flat shape, winter three times summer.
func heatPumpCustomer(level float64) []loadcurve.Reading {
	p := synth.FlatProfile(level).WithSeasons(features.DefaultSeasons(), 3, 1, 2)
	return synth.Generate(p, fixtureOptions())
}

// morning and evening peaks, strongest at 19h.
func residentialCustomer(level float64) []loadcurve.Reading {
	p := synth.FlatProfile(level)
	p.Hourly[7] = 3 * level
	p.Hourly[19] = 4 * level
	return synth.Generate(p, fixtureOptions())
}

func csvSource(t *testing.T, series map[string][]loadcurve.Reading) (*loadcurve.CSVSource, *fsutil.MemoryFileSystem) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	src := loadcurve.NewCSVSource(mfs, "/data")
	for id, readings := range series {
		var buf bytes.Buffer
		require.NoError(t, loadcurve.WriteCSV(&buf, readings))
		require.NoError(t, mfs.WriteFile(src.Path(id), buf.Bytes(), 0644))
	}
	return src, mfs
}

func quiet(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.Logf = original })
}

var runClock = timeutil.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

func TestRun_ThreeCustomerScenario(t *testing.T) {
	quiet(t)
	src, _ := csvSource(t, map[string][]loadcurve.Reading{
		"00001": flatCustomer(1),
		"00002": evCustomer(1),
		"00003": heatPumpCustomer(1),
	})

	outcome, err := Run(context.Background(), Options{Source: src, Clusters: 2, Clock: runClock})
	require.NoError(t, err)

	f := outcome.Features
	assert.InDelta(t, 3.0, f["00003"].RatioWinterSummer, 1e-9)
	assert.Equal(t, 1.0, f["00002"].RatioWinterSummer)
	assert.Equal(t, 0, features.PeakHour(f["00001"].HourlyProfile))

	// The overnight customer is the outlier in the weighted space: the
	// seasonal column separates the heat-pump customer from the flat one by
	// less than the shape columns separate the EV customer from both.
	cc := outcome.Result.CustomerClusters
	assert.Equal(t, cc["00001"], cc["00003"])
	assert.NotEqual(t, cc["00001"], cc["00002"])

	defs := outcome.Result.ClusterDefinitions
	ev := defs[fmt.Sprint(cc["00002"])]
	assert.Equal(t, labeler.NameEVCharger, ev.Name)
	assert.Equal(t, 1, ev.Count)

	// Both members of the other cluster have flat shapes, which peak at
	// hour 0 under first-max tie-breaking, and their ratios average to 2.
	mixed := defs[fmt.Sprint(cc["00001"])]
	assert.Equal(t, 2, mixed.Count)
	assert.Equal(t, 2.0, mixed.AvgRatioWinterSummer)
	assert.Equal(t, labeler.NameEVCharger, mixed.Name)
}

func sixCustomers() map[string][]loadcurve.Reading {
	return map[string][]loadcurve.Reading{
		"00001": residentialCustomer(1),
		"00002": residentialCustomer(2),
		"00003": evCustomer(1),
		"00004": evCustomer(0.5),
		"00005": heatPumpCustomer(1),
		"00006": heatPumpCustomer(2),
	}
}

func TestRun_AutoSelectsAndLabels(t *testing.T) {
	quiet(t)
	src, mfs := csvSource(t, sixCustomers())

	var out bytes.Buffer
	outcome, err := Run(context.Background(), Options{
		Source:     src,
		OutputPath: "/out/clusters.json",
		FS:         mfs,
		Clock:      runClock,
		Out:        &out,
	})
	require.NoError(t, err)

	require.NotNil(t, outcome.Selection)
	assert.Equal(t, 3, outcome.Selection.BestK)
	assert.Len(t, outcome.Selection.Scores, 3) // k = 3..5 for six customers
	assert.InDelta(t, 1.0, outcome.Silhouette, 1e-9)

	cc := outcome.Result.CustomerClusters
	defs := outcome.Result.ClusterDefinitions
	name := func(id string) string { return defs[fmt.Sprint(cc[id])].Name }
	assert.Equal(t, labeler.NameResidential, name("00001"))
	assert.Equal(t, labeler.NameResidential, name("00002"))
	assert.Equal(t, labeler.NameEVCharger, name("00003"))
	assert.Equal(t, labeler.NameEVCharger, name("00004"))
	assert.Equal(t, labeler.NameHeatPump, name("00005"))
	assert.Equal(t, labeler.NameHeatPump, name("00006"))

	// Unweighted engine centroids recover the members' seasonal ratios.
	require.Len(t, outcome.Centroids, 3)
	heatPump := outcome.Centroids[cc["00005"]]
	assert.InDelta(t, 3.0, heatPump.Ratio, 1e-9)
	assert.InDelta(t, 1.0, outcome.Centroids[cc["00003"]].Ratio, 1e-9)
	assert.Len(t, heatPump.Features, features.Dims)
	assert.InDelta(t, 0.75, heatPump.Features[features.SeasonalCol], 1e-9)
	assert.Contains(t, out.String(), "winter/summer ratio ~3.00")

	assert.Contains(t, out.String(), "Optimal: k=3")
	assert.Contains(t, out.String(), "heat-pump-like")

	saved, err := results.Load(mfs, "/out/clusters.json")
	require.NoError(t, err)
	assert.Equal(t, outcome.Result, saved)
	assert.Equal(t, 3, saved.Metadata.NClusters)
	assert.Equal(t, 6, saved.Metadata.NCustomers)
	assert.Equal(t, 1.0, saved.Metadata.SilhouetteScore)
	assert.Equal(t, "2024-06-01T12:00:00.000000", saved.Metadata.Created)
}

func TestRun_Deterministic(t *testing.T) {
	quiet(t)
	src, _ := csvSource(t, map[string][]loadcurve.Reading{
		"00001": residentialCustomer(1),
		"00002": residentialCustomer(1.5),
		"00003": evCustomer(1),
		"00004": flatCustomer(2),
		"00005": heatPumpCustomer(1),
		"00006": synth.Generate(synth.EVProfile(), fixtureOptions()),
		"00007": heatPumpCustomer(0.4),
	})

	run := func() *Outcome {
		o, err := Run(context.Background(), Options{Source: src, Clusters: 3, Clock: runClock})
		require.NoError(t, err)
		return o
	}
	first, second := run(), run()

	if diff := cmp.Diff(first.Result.CustomerClusters, second.Result.CustomerClusters); diff != "" {
		t.Errorf("customer clusters differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Clustering.Centroids.RawMatrix().Data, second.Clustering.Centroids.RawMatrix().Data); diff != "" {
		t.Errorf("centroids differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Result.ClusterDefinitions, second.Result.ClusterDefinitions); diff != "" {
		t.Errorf("definitions differ between runs (-first +second):\n%s", diff)
	}
}

func TestRun_LogsDurationFromClock(t *testing.T) {
	var logs bytes.Buffer
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) { fmt.Fprintf(&logs, format+"\n", v...) })
	t.Cleanup(func() { monitoring.Logf = original })

	src, _ := csvSource(t, sixCustomers())
	_, err := Run(context.Background(), Options{Source: src, Clusters: 3, Clock: runClock})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "clustered 6 customers in 0s")
}

func TestRun_SearchOnly(t *testing.T) {
	quiet(t)
	src, mfs := csvSource(t, sixCustomers())

	var out bytes.Buffer
	outcome, err := Run(context.Background(), Options{
		Source:     src,
		Clusters:   4,
		SearchOnly: true,
		OutputPath: "/out/clusters.json",
		FS:         mfs,
		Out:        &out,
	})
	require.NoError(t, err)
	assert.NotNil(t, outcome.Selection)
	assert.Nil(t, outcome.Clustering)
	assert.Nil(t, outcome.Result)
	assert.Nil(t, outcome.Centroids)
	assert.False(t, mfs.Exists("/out/clusters.json"))
	assert.Contains(t, out.String(), "silhouette=")
}

func TestRun_InvalidK(t *testing.T) {
	quiet(t)
	src, _ := csvSource(t, sixCustomers())

	_, err := Run(context.Background(), Options{Source: src, Clusters: 6})
	assert.ErrorIs(t, err, cluster.ErrInvalidK)

	_, err = Run(context.Background(), Options{Source: src, Clusters: 5, Clock: runClock})
	assert.NoError(t, err)
}

func TestRun_SkipsBadCustomers(t *testing.T) {
	quiet(t)
	src, mfs := csvSource(t, sixCustomers())
	require.NoError(t, mfs.WriteFile(src.Path("00007"), []byte("timestamp,value\n2023-01-01 00:00:00,oops\n"), 0644))

	var progress bytes.Buffer
	outcome, err := Run(context.Background(), Options{Source: src, Clusters: 3, Clock: runClock, ProgressOut: &progress})
	require.NoError(t, err)
	assert.Equal(t, 7, outcome.Batch.Requested)
	assert.Equal(t, 1, outcome.Batch.Count(features.SkipMalformed))
	assert.Len(t, outcome.Result.CustomerClusters, 6)
	assert.NotContains(t, outcome.Result.CustomerClusters, "00007")
	assert.Contains(t, progress.String(), "7/7 files processed")
}

func TestRun_EmptyBatch(t *testing.T) {
	quiet(t)
	src, mfs := csvSource(t, nil)

	_, err := Run(context.Background(), Options{Source: src})
	assert.ErrorIs(t, err, features.ErrEmptyBatch)

	require.NoError(t, mfs.WriteFile(src.Path("00001"), []byte("timestamp,value\nbad,1\n"), 0644))
	_, err = Run(context.Background(), Options{Source: src})
	assert.ErrorIs(t, err, features.ErrEmptyBatch)
}

func TestRun_Sample(t *testing.T) {
	quiet(t)
	src, _ := csvSource(t, sixCustomers())

	outcome, err := Run(context.Background(), Options{Source: src, Sample: 4, Clusters: 2, Clock: runClock})
	require.NoError(t, err)
	assert.Len(t, outcome.CustomerIDs, 4)
	assert.Len(t, outcome.Result.CustomerClusters, 4)
}

func TestSampleIDs(t *testing.T) {
	ids := []string{"05", "01", "03", "02", "04", "06"}

	a := SampleIDs(ids, 3, 42)
	b := SampleIDs(ids, 3, 42)
	assert.Equal(t, a, b)
	assert.Len(t, a, 3)
	assert.IsIncreasing(t, a)

	assert.Equal(t, ids, SampleIDs(ids, 0, 42))
	assert.Equal(t, ids, SampleIDs(ids, 10, 42))
}
