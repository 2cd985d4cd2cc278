// Command loadcluster groups customers by the shape of their load curves
// and writes the labelled clusters to a JSON file.
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
	"github.com/banshee-data/loadprofile/internal/pipeline"
	"github.com/banshee-data/loadprofile/internal/report"
	"github.com/banshee-data/loadprofile/internal/results"
	"github.com/banshee-data/loadprofile/internal/timeutil"
	"github.com/banshee-data/loadprofile/internal/version"
)

const binaryName = "loadcluster"

type cliOptions struct {
	dataDir     string
	dbPath      string
	configPath  string
	outputPath  string
	sample      int
	clusters    int
	findOptimal bool
	seed        int64
	seedSet     bool
	workers     int
	plotPath    string
	htmlPath    string
	show        bool
	quiet       bool
	showVersion bool
}

func parseFlags(args []string, env config.Env, stderr io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet(binaryName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &cliOptions{}
	fs.StringVar(&o.dataDir, "data", env.DataDir, "directory of "+loadcurve.DefaultFilePrefix+"<id>.csv load curves")
	fs.StringVar(&o.dbPath, "db", env.DBPath, "read load curves from this SQLite database instead of -data")
	fs.StringVar(&o.configPath, "config", env.ConfigPath, "clustering config JSON (optional)")
	fs.StringVar(&o.outputPath, "output", env.OutputPath, "path of the JSON result")
	fs.IntVar(&o.sample, "sample", 0, "cluster a random sample of N customers (0 = all)")
	fs.IntVar(&o.clusters, "clusters", 0, "fixed number of clusters (0 = choose by silhouette)")
	fs.BoolVar(&o.findOptimal, "find-optimal", false, "only run the K search and print the scores")
	fs.Int64Var(&o.seed, "seed", 0, "override the config random seed")
	fs.IntVar(&o.workers, "workers", 0, "feature extraction workers (0 = config value)")
	fs.StringVar(&o.plotPath, "plot", "", "write silhouette and inertia plots to this PNG path")
	fs.StringVar(&o.htmlPath, "html", "", "write an HTML chart of cluster centroids")
	fs.BoolVar(&o.show, "show", false, "print the summary of an existing -output file and exit")
	fs.BoolVar(&o.quiet, "quiet", false, "suppress progress output")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			o.seedSet = true
		}
	})
	if o.sample < 0 || o.clusters < 0 || o.workers < 0 {
		return nil, errors.New("-sample, -clusters and -workers must not be negative")
	}
	return o, nil
}

// loadConfig reads the config file when one is named and applies flag
// overrides on top.
func loadConfig(o *cliOptions) (*config.ClusteringConfig, error) {
	cfg := config.EmptyClusteringConfig()
	if o.configPath != "" {
		var err error
		cfg, err = config.LoadClusteringConfig(o.configPath)
		if err != nil {
			return nil, err
		}
	}
	if o.seedSet {
		seed := o.seed
		cfg.Seed = &seed
	}
	if o.workers > 0 {
		workers := o.workers
		cfg.Workers = &workers
	}
	return cfg, nil
}

func openSource(o *cliOptions, fsys fsutil.FileSystem) (loadcurve.Source, func(), error) {
	if o.dbPath != "" {
		db, err := loadcurve.OpenSQLite(o.dbPath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
	if !fsys.Exists(o.dataDir) {
		return nil, nil, fmt.Errorf("data directory %s does not exist", o.dataDir)
	}
	return loadcurve.NewCSVSource(fsys, o.dataDir), func() {}, nil
}

func run(ctx context.Context, o *cliOptions, fsys fsutil.FileSystem, stdout, stderr io.Writer) error {
	if o.show {
		res, err := results.Load(fsys, o.outputPath)
		if err != nil {
			return err
		}
		return res.WriteSummary(stdout)
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	src, closeSource, err := openSource(o, fsys)
	if err != nil {
		return err
	}
	defer closeSource()

	opts := pipeline.Options{
		Source:     src,
		Config:     cfg,
		Sample:     o.sample,
		Clusters:   o.clusters,
		SearchOnly: o.findOptimal,
		OutputPath: o.outputPath,
		FS:         fsys,
		Clock:      timeutil.RealClock{},
		Out:        stdout,
	}
	if !o.quiet {
		opts.ProgressOut = stderr
	}

	outcome, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}

	if o.plotPath != "" && outcome.Selection != nil {
		files, err := report.SelectionPlot(outcome.Selection, o.plotPath)
		if err != nil {
			return fmt.Errorf("failed to write plots: %w", err)
		}
		for _, f := range files {
			fmt.Fprintf(stdout, "Plot written to %s\n", f)
		}
	}
	if o.htmlPath != "" && outcome.Result != nil {
		if err := report.WriteCentroidPage(fsys, o.htmlPath, outcome.Result); err != nil {
			return fmt.Errorf("failed to write chart page: %w", err)
		}
		fmt.Fprintf(stdout, "Chart written to %s\n", o.htmlPath)
	}
	return nil
}

func main() {
	env := config.LoadEnv()
	o, err := parseFlags(os.Args[1:], env, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("%v", err)
	}
	if o.showVersion {
		fmt.Println(version.String(binaryName))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, o, fsutil.OSFileSystem{}, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		log.Fatalf("%s: %v", binaryName, err)
	}
}
