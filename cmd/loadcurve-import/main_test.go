package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
)

const series = `timestamp,value
2023-01-01 00:00:00,0.25
2023-01-01 00:15:00,0.5
`

func TestRun_ImportsAndClosesDatabase(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/data", 0755))
	src := loadcurve.NewCSVSource(mfs, "/data")
	require.NoError(t, mfs.WriteFile(src.Path("1"), []byte(series), 0644))
	require.NoError(t, mfs.WriteFile(src.Path("2"), []byte(series), 0644))

	dbPath := filepath.Join(t.TempDir(), "series.db")
	var progress bytes.Buffer
	stats, err := run(context.Background(), mfs, "/data", dbPath, 1, &progress)
	require.NoError(t, err)
	assert.Equal(t, loadcurve.ImportStats{Imported: 2, Readings: 4}, stats)
	assert.Contains(t, progress.String(), "2/2 customers imported")

	// The database was closed by run, so it can be reopened and read.
	db, err := loadcurve.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer db.Close()
	ids, err := db.ListCustomers()
	require.NoError(t, err)
	assert.Equal(t, []string{"00001", "00002"}, ids)
}

func TestRun_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/data", 0755))

	_, err := run(context.Background(), mfs, "/data", "", 1, nil)
	assert.ErrorContains(t, err, "-db is required")

	_, err = run(context.Background(), mfs, "/missing", filepath.Join(t.TempDir(), "x.db"), 1, nil)
	assert.ErrorContains(t, err, "does not exist")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := loadcurve.NewCSVSource(mfs, "/data")
	require.NoError(t, mfs.WriteFile(src.Path("1"), []byte(series), 0644))
	_, err = run(ctx, mfs, "/data", filepath.Join(t.TempDir(), "y.db"), 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
