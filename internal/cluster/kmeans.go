// Package cluster partitions the weighted feature matrix with K-means and
// scores candidate cluster counts with the silhouette coefficient.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidK is returned when the requested cluster count is outside
// [1, n-1] for n customers.
var ErrInvalidK = errors.New("invalid cluster count")

// Options configures the K-means engine.
type Options struct {
	Seed      int64
	NInit     int     // independent seeded initialisations; lowest inertia wins
	MaxIter   int     // Lloyd iterations per initialisation
	Tolerance float64 // relative to the mean per-feature variance of the input
}

// DefaultOptions returns seed 42, 10 initialisations, 300 iterations and
// tolerance 1e-4.
func DefaultOptions() Options {
	return Options{
		Seed:      42,
		NInit:     10,
		MaxIter:   300,
		Tolerance: 1e-4,
	}
}

// Result is one fitted partition.
type Result struct {
	K int
	// Labels[i] is the cluster of matrix row i, in 0..K-1.
	Labels []int
	// Centroids is K×d in the same weighted space as the input matrix.
	Centroids  *mat.Dense
	Inertia    float64
	Iterations int
}

// Sizes returns the member count of each cluster.
func (r *Result) Sizes() []int {
	sizes := make([]int, r.K)
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}

// Clusterer abstracts the partitioning algorithm so the selector and
// pipeline can be exercised with alternative engines.
type Clusterer interface {
	Fit(x *mat.Dense, k int) (*Result, error)
}

// KMeans is a seeded k-means++/Lloyd engine. Fit is deterministic for a
// given matrix, K and Options.
type KMeans struct {
	opts Options
}

// NewKMeans creates an engine with the given options.
func NewKMeans(opts Options) *KMeans {
	if opts.NInit < 1 {
		opts.NInit = 1
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}
	return &KMeans{opts: opts}
}

// Options returns the engine configuration.
func (km *KMeans) Options() Options {
	return km.opts
}

// ValidateK checks k against the number of rows.
func ValidateK(k, n int) error {
	if k < 1 || k >= n {
		return fmt.Errorf("%w: k=%d with %d customers (valid range 1..%d)", ErrInvalidK, k, n, n-1)
	}
	return nil
}

// Fit partitions the rows of x into k clusters.
func (km *KMeans) Fit(x *mat.Dense, k int) (*Result, error) {
	n, d := x.Dims()
	if err := ValidateK(k, n); err != nil {
		return nil, err
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	tol := km.opts.Tolerance * meanVariance(rows, d)

	// A single stream serves every initialisation so runs differ from each
	// other but the whole fit is reproducible.
	rng := rand.New(rand.NewSource(km.opts.Seed))

	var best *run
	for i := 0; i < km.opts.NInit; i++ {
		centroids := seedPlusPlus(rows, k, rng)
		res := lloyd(rows, centroids, km.opts.MaxIter, tol)
		if best == nil || res.inertia < best.inertia {
			best = res
		}
	}

	flat := make([]float64, 0, k*d)
	for _, c := range best.centroids {
		flat = append(flat, c...)
	}
	return &Result{
		K:          k,
		Labels:     best.labels,
		Centroids:  mat.NewDense(k, d, flat),
		Inertia:    best.inertia,
		Iterations: best.iterations,
	}, nil
}

type run struct {
	labels     []int
	centroids  [][]float64
	inertia    float64
	iterations int
}

func meanVariance(rows [][]float64, d int) float64 {
	col := make([]float64, len(rows))
	var sum float64
	for j := 0; j < d; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		_, std := stat.PopMeanStdDev(col, nil)
		sum += std * std
	}
	return sum / float64(d)
}

func sqDist(a, b []float64) float64 {
	dist := floats.Distance(a, b, 2)
	return dist * dist
}

// seedPlusPlus picks k initial centroids: the first uniformly, each next
// one with probability proportional to its squared distance from the
// nearest centroid already chosen.
func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centroids := make([][]float64, 0, k)
	first := rng.Intn(n)
	centroids = append(centroids, append([]float64(nil), rows[first]...))

	closest := make([]float64, n)
	for i, r := range rows {
		closest[i] = sqDist(r, centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(closest)
		next := -1
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i, dd := range closest {
				acc += dd
				if dd > 0 && acc >= target {
					next = i
					break
				}
			}
			if next < 0 {
				next = floats.MaxIdx(closest)
			}
		} else {
			// Every point coincides with a chosen centroid.
			next = rng.Intn(n)
		}

		c := append([]float64(nil), rows[next]...)
		centroids = append(centroids, c)
		for i, r := range rows {
			closest[i] = math.Min(closest[i], sqDist(r, c))
		}
	}
	return centroids
}

// assign sets each label to its nearest centroid (lowest index on ties) and
// returns the total squared distance.
func assign(rows, centroids [][]float64, labels []int) float64 {
	var inertia float64
	for i, r := range rows {
		bestJ, bestD := 0, math.Inf(1)
		for j, c := range centroids {
			if dd := sqDist(r, c); dd < bestD {
				bestJ, bestD = j, dd
			}
		}
		labels[i] = bestJ
		inertia += bestD
	}
	return inertia
}

func lloyd(rows, centroids [][]float64, maxIter int, tol float64) *run {
	n, k := len(rows), len(centroids)
	d := len(rows[0])
	labels := make([]int, n)

	iter := 0
	for iter < maxIter {
		iter++
		assign(rows, centroids, labels)

		next := make([][]float64, k)
		counts := make([]int, k)
		for j := range next {
			next[j] = make([]float64, d)
		}
		for i, r := range rows {
			floats.Add(next[labels[i]], r)
			counts[labels[i]]++
		}
		for j := range next {
			if counts[j] > 0 {
				floats.Scale(1/float64(counts[j]), next[j])
			}
		}
		repairEmpty(rows, next, labels, counts)

		var shift float64
		for j := range next {
			shift += sqDist(centroids[j], next[j])
		}
		centroids = next
		if shift <= tol {
			break
		}
	}

	inertia := assign(rows, centroids, labels)
	return &run{labels: labels, centroids: centroids, inertia: inertia, iterations: iter}
}

// repairEmpty moves the point farthest from its own centroid into each
// empty cluster. A point is moved at most once per repair pass.
func repairEmpty(rows, centroids [][]float64, labels, counts []int) {
	moved := make(map[int]bool)
	for j := range centroids {
		if counts[j] > 0 {
			continue
		}
		far, farD := -1, -1.0
		for i, r := range rows {
			if moved[i] || counts[labels[i]] < 2 {
				continue
			}
			if dd := sqDist(r, centroids[labels[i]]); dd > farD {
				far, farD = i, dd
			}
		}
		if far < 0 {
			continue
		}
		moved[far] = true
		counts[labels[far]]--
		labels[far] = j
		counts[j] = 1
		copy(centroids[j], rows[far])
	}
}

// Verify at compile time that *KMeans implements Clusterer.
var _ Clusterer = (*KMeans)(nil)
