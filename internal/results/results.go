// Package results persists the clustering artifact: run metadata, cluster
// definitions and the customer to cluster mapping.
package results

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/banshee-data/loadprofile/internal/fsutil"
	"github.com/banshee-data/loadprofile/internal/labeler"
	"github.com/banshee-data/loadprofile/internal/timeutil"
)

// CreatedLayout formats the run timestamp with microseconds and no zone.
const CreatedLayout = "2006-01-02T15:04:05.000000"

// DefaultPath is where the artifact is written when no path is given.
const DefaultPath = "clusters.json"

// Metadata describes one clustering run.
type Metadata struct {
	Created         string  `json:"created"`
	RunID           string  `json:"run_id"`
	NClusters       int     `json:"n_clusters"`
	NCustomers      int     `json:"n_customers"`
	SilhouetteScore float64 `json:"silhouette_score"`
}

// ClusteringResult is the persisted artifact.
type ClusteringResult struct {
	Metadata           Metadata                             `json:"metadata"`
	ClusterDefinitions map[string]labeler.ClusterDefinition `json:"cluster_definitions"`
	CustomerClusters   map[string]int                       `json:"customer_clusters"`
}

// New assembles an artifact. Every customer must appear exactly once and
// carry a label in [0, k).
func New(clock timeutil.Clock, ids []string, labels []int, defs map[int]labeler.ClusterDefinition, k int, silhouette float64) (*ClusteringResult, error) {
	if len(ids) != len(labels) {
		return nil, fmt.Errorf("label count %d does not match customer count %d", len(labels), len(ids))
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	assignments := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := assignments[id]; dup {
			return nil, fmt.Errorf("customer %s assigned twice", id)
		}
		if labels[i] < 0 || labels[i] >= k {
			return nil, fmt.Errorf("customer %s has label %d outside 0..%d", id, labels[i], k-1)
		}
		assignments[id] = labels[i]
	}

	definitions := make(map[string]labeler.ClusterDefinition, len(defs))
	for _, label := range labeler.SortedLabels(defs) {
		if label < 0 || label >= k {
			return nil, fmt.Errorf("cluster definition %d outside 0..%d", label, k-1)
		}
		definitions[strconv.Itoa(label)] = defs[label]
	}

	return &ClusteringResult{
		Metadata: Metadata{
			Created:         clock.Now().Format(CreatedLayout),
			RunID:           uuid.NewString(),
			NClusters:       k,
			NCustomers:      len(ids),
			SilhouetteScore: math.Round(silhouette*1000) / 1000,
		},
		ClusterDefinitions: definitions,
		CustomerClusters:   assignments,
	}, nil
}

// Save writes the artifact as indented JSON, replacing any previous file at
// path. The file is written to a temporary name first and renamed into place.
func (r *ClusteringResult) Save(fsys fsutil.FileSystem, path string) error {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal clustering result: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := fsys.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Load reads an artifact written by Save.
func Load(fsys fsutil.FileSystem, path string) (*ClusteringResult, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clustering result: %w", err)
	}
	var r ClusteringResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse clustering result %s: %w", path, err)
	}
	return &r, nil
}

// ClusterIDs returns the definition keys in numeric order.
func (r *ClusteringResult) ClusterIDs() []string {
	ids := make([]string, 0, len(r.ClusterDefinitions))
	for id := range r.ClusterDefinitions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})
	return ids
}

// WriteSummary prints one block per cluster: name, member share,
// description and average seasonal ratio.
func (r *ClusteringResult) WriteSummary(w io.Writer) error {
	total := r.Metadata.NCustomers
	if total == 0 {
		total = len(r.CustomerClusters)
	}
	rule := "============================================================"
	if _, err := fmt.Fprintf(w, "%s\nCLUSTER SUMMARY (k=%d, %d customers, silhouette=%.3f)\n%s\n",
		rule, r.Metadata.NClusters, total, r.Metadata.SilhouetteScore, rule); err != nil {
		return err
	}
	for _, id := range r.ClusterIDs() {
		def := r.ClusterDefinitions[id]
		share := 0.0
		if total > 0 {
			share = float64(def.Count) / float64(total) * 100
		}
		if _, err := fmt.Fprintf(w, "\nCluster %s: %s\n  └─ %d customers (%.1f%%)\n  └─ %s\n  └─ winter/summer ratio: %.2f\n",
			id, def.Name, def.Count, share, def.Description, def.AvgRatioWinterSummer); err != nil {
			return err
		}
	}
	return nil
}
