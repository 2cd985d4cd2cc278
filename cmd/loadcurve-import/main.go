// Command loadcurve-import copies a directory of load-curve CSV files into
// a SQLite database that loadcluster can read with -db.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/loadprofile/internal/config"
	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/loadcurve"
	"github.com/banshee-data/loadprofile/internal/monitoring"
	"github.com/banshee-data/loadprofile/internal/version"
)

// run imports every series under dataDir into the database at dbPath. The
// database is closed before run returns, on success or failure.
func run(ctx context.Context, fsys fsutil.FileSystem, dataDir, dbPath string, every int, progressOut io.Writer) (stats loadcurve.ImportStats, err error) {
	if dbPath == "" {
		return stats, errors.New("-db is required")
	}
	if !fsys.Exists(dataDir) {
		return stats, fmt.Errorf("data directory %s does not exist", dataDir)
	}

	db, err := loadcurve.OpenSQLite(dbPath)
	if err != nil {
		return stats, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
	}()

	var progress *monitoring.Progress
	if progressOut != nil {
		progress = monitoring.NewProgress(0, every, "customers imported")
		progress.Out = progressOut
	}
	stats, err = loadcurve.Import(ctx, loadcurve.NewCSVSource(fsys, dataDir), db, progress)
	if err != nil {
		return stats, fmt.Errorf("import failed: %w", err)
	}
	return stats, nil
}

func main() {
	env := config.LoadEnv()

	dataDir := flag.String("data", env.DataDir, "directory of "+loadcurve.DefaultFilePrefix+"<id>.csv load curves")
	dbPath := flag.String("db", env.DBPath, "SQLite database to create or update")
	every := flag.Int("progress-every", 50, "print progress every N customers")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("loadcurve-import"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	stats, err := run(ctx, fsutil.OSFileSystem{}, *dataDir, *dbPath, *every, os.Stderr)
	stop()
	if err != nil {
		log.Fatalf("loadcurve-import: %v", err)
	}
	log.Printf("imported %d customers (%d readings), skipped %d", stats.Imported, stats.Readings, stats.Skipped)
}
