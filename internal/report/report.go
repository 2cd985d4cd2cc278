// Package report renders diagnostics for a clustering run: the K search
// curves as PNG images and the cluster centroids as an HTML chart page.
package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/loadprofile/internal/cluster"
	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/results"
)

// InertiaSuffix is inserted before the extension of the inertia plot.
const InertiaSuffix = "_inertia"

// SelectionPlot writes the silhouette curve to path and the inertia curve
// to the same name with InertiaSuffix. It returns the files written.
func SelectionPlot(sel *cluster.Selection, path string) ([]string, error) {
	if sel == nil || len(sel.Scores) == 0 {
		return nil, fmt.Errorf("no K search scores to plot")
	}

	silPts := make(plotter.XYs, 0, len(sel.Scores))
	inPts := make(plotter.XYs, 0, len(sel.Scores))
	for _, sc := range sel.Scores {
		silPts = append(silPts, plotter.XY{X: float64(sc.K), Y: sc.Silhouette})
		inPts = append(inPts, plotter.XY{X: float64(sc.K), Y: sc.Inertia})
	}

	ext := filepath.Ext(path)
	inertiaPath := strings.TrimSuffix(path, ext) + InertiaSuffix + ext

	best := sel.BestScore()
	if err := savePlot(silPts, fmt.Sprintf("Silhouette by K (best k=%d, %.3f)", best.K, best.Silhouette), "Silhouette", path); err != nil {
		return nil, err
	}
	if err := savePlot(inPts, "Inertia by K", "Inertia", inertiaPath); err != nil {
		return nil, err
	}
	return []string{path, inertiaPath}, nil
}

func savePlot(pts plotter.XYs, title, yLabel, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "K"
	p.Y.Label.Text = yLabel

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1.5)
	points.Color = line.Color
	p.Add(line, points, plotter.NewGrid())

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// CentroidPage renders one line per cluster showing its average 24-hour
// profile, followed by a bar chart of cluster sizes.
func CentroidPage(w io.Writer, res *results.ClusteringResult) error {
	hours := make([]string, 24)
	for h := range hours {
		hours[h] = fmt.Sprintf("%02dh", h)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Load Profile Clusters", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Cluster Centroids",
			Subtitle: fmt.Sprintf("k=%d customers=%d silhouette=%.3f created=%s", res.Metadata.NClusters, res.Metadata.NCustomers, res.Metadata.SilhouetteScore, res.Metadata.Created),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "hour", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "kWh", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(hours)

	ids := res.ClusterIDs()
	names := make([]string, 0, len(ids))
	counts := make([]opts.BarData, 0, len(ids))
	for _, id := range ids {
		def := res.ClusterDefinitions[id]
		data := make([]opts.LineData, len(def.Centroid))
		for h, v := range def.Centroid {
			data[h] = opts.LineData{Value: v}
		}
		name := fmt.Sprintf("%s: %s", id, def.Name)
		line.AddSeries(name, data)
		names = append(names, name)
		counts = append(counts, opts.BarData{Value: def.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Cluster Sizes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("customers", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.PageTitle = "Load Profile Clusters"
	page.AddCharts(line, bar)
	return page.Render(w)
}

// WriteCentroidPage renders CentroidPage into a file.
func WriteCentroidPage(fsys fsutil.FileSystem, path string, res *results.ClusteringResult) error {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	var buf bytes.Buffer
	if err := CentroidPage(&buf, res); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return fsys.WriteFile(path, buf.Bytes(), 0644)
}
