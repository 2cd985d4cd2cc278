package features

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
)

type stubSource struct {
	series map[string][]loadcurve.Reading
	errs   map[string]error
}

func (s *stubSource) ListCustomers() ([]string, error) {
	var ids []string
	for id := range s.series {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubSource) ReadSeries(id string) ([]loadcurve.Reading, error) {
	if err, ok := s.errs[id]; ok {
		return nil, err
	}
	r, ok := s.series[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, loadcurve.ErrNotFound)
	}
	return r, nil
}

func silenceLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func daySeries(level float64) []loadcurve.Reading {
	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	return series(start, start.Add(24*time.Hour), func(ts time.Time) float64 {
		return level + float64(ts.Hour())/10
	})
}

func TestExtractAll_SkipsAndContinues(t *testing.T) {
	silenceLogs(t)
	src := &stubSource{
		series: map[string][]loadcurve.Reading{
			"00001": daySeries(1),
			"00003": daySeries(2),
		},
		errs: map[string]error{
			"00002": fmt.Errorf("line 4: %w", loadcurve.ErrMalformedRecord),
		},
	}

	feats, report, err := ExtractAll(context.Background(), src, []string{"00001", "00002", "00003", "00004"}, BatchOptions{Seasons: DefaultSeasons()})
	require.NoError(t, err)
	assert.Len(t, feats, 2)
	assert.Contains(t, feats, "00001")
	assert.Contains(t, feats, "00003")

	assert.Equal(t, 4, report.Requested)
	assert.Equal(t, 2, report.Extracted)
	assert.Equal(t, 1, report.Count(SkipMalformed))
	assert.Equal(t, 1, report.Count(SkipNotFound))
	assert.Equal(t, "00002", report.Skipped[0].CustomerID)
}

func TestExtractAll_EmptyBatch(t *testing.T) {
	silenceLogs(t)
	src := &stubSource{}
	_, report, err := ExtractAll(context.Background(), src, []string{"00001"}, BatchOptions{Seasons: DefaultSeasons()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.Equal(t, 1, report.Count(SkipNotFound))
}

func TestExtractAll_WorkersMatchSequential(t *testing.T) {
	silenceLogs(t)
	src := &stubSource{series: map[string][]loadcurve.Reading{}}
	var ids []string
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("%05d", i)
		ids = append(ids, id)
		src.series[id] = daySeries(float64(i))
	}

	sequential, _, err := ExtractAll(context.Background(), src, ids, BatchOptions{Seasons: DefaultSeasons()})
	require.NoError(t, err)
	parallel, _, err := ExtractAll(context.Background(), src, ids, BatchOptions{Seasons: DefaultSeasons(), Workers: 4})
	require.NoError(t, err)

	if diff := cmp.Diff(sequential, parallel); diff != "" {
		t.Errorf("parallel extraction differs (-seq +par):\n%s", diff)
	}
}

func TestExtractAll_Cancelled(t *testing.T) {
	src := &stubSource{series: map[string][]loadcurve.Reading{"00001": daySeries(1)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ExtractAll(ctx, src, []string{"00001"}, BatchOptions{Seasons: DefaultSeasons()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSortedIDs(t *testing.T) {
	feats := map[string]CustomerFeatures{"b": {}, "a": {}, "c": {}}
	assert.Equal(t, []string{"a", "b", "c"}, SortedIDs(feats))
}
