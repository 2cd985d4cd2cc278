package main

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/loadprofile/internal/features"
	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
)

// dayOf returns hourly readings for one day with value night at hours 0..5
// and day elsewhere.
func dayOf(night, day float64) []loadcurve.Reading {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]loadcurve.Reading, 24)
	for h := range out {
		v := day
		if h < 6 {
			v = night
		}
		out[h] = loadcurve.Reading{Timestamp: start.Add(time.Duration(h) * time.Hour), Value: v}
	}
	return out
}

func source(t *testing.T, series map[string][]loadcurve.Reading) *loadcurve.CSVSource {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	src := loadcurve.NewCSVSource(mfs, "/data")
	for id, r := range series {
		var buf bytes.Buffer
		require.NoError(t, loadcurve.WriteCSV(&buf, r))
		require.NoError(t, mfs.WriteFile(src.Path(id), buf.Bytes(), 0644))
	}
	return src
}

func TestScan_RanksByNightDayRatio(t *testing.T) {
	original := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.Logf = original })

	src := source(t, map[string][]loadcurve.Reading{
		"00001": dayOf(1, 1),
		"00002": dayOf(4, 1),
		"00003": dayOf(1, 2),
		"00004": dayOf(9, 1),
	})

	cands, err := scan(src, 3, features.DefaultHourSets(), features.DefaultSeasons())
	require.NoError(t, err)
	require.Len(t, cands, 3) // 00004 is past the limit

	assert.Equal(t, "00002", cands[0].ID)
	assert.Equal(t, "00001", cands[1].ID)
	assert.Equal(t, "00003", cands[2].ID)
	assert.Equal(t, 0, cands[0].PeakHour)
	assert.Greater(t, cands[0].Ratio, 1.0)
	assert.Less(t, cands[2].Ratio, 1.0)
}

func TestScan_SkipsUnreadable(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	mfs := fsutil.NewMemoryFileSystem()
	src := loadcurve.NewCSVSource(mfs, "/data")
	require.NoError(t, mfs.WriteFile(src.Path("00001"), []byte("timestamp,value\nbad,1\n"), 0644))

	cands, err := scan(src, 0, features.DefaultHourSets(), features.DefaultSeasons())
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestPrintCandidates(t *testing.T) {
	cands := make([]candidate, 12)
	for i := range cands {
		cands[i] = candidate{ID: fmt.Sprintf("%05d", i), Ratio: float64(12 - i), PeakHour: i}
	}

	var buf bytes.Buffer
	printCandidates(&buf, cands, 10)
	out := buf.String()
	assert.Contains(t, out, "Top 10 customers")
	assert.Contains(t, out, " 1. 00000  ratio=12.00")
	assert.Contains(t, out, "10. 00009")
	assert.NotContains(t, out, "00010")

	buf.Reset()
	printCandidates(&buf, cands[:2], 10)
	assert.Contains(t, buf.String(), "Top 2 customers")
}
