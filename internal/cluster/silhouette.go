package cluster

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Silhouette returns the mean silhouette coefficient of a labelling using
// Euclidean distance. Members of singleton clusters score 0. The result is
// 0 when fewer than two clusters are populated.
func Silhouette(x *mat.Dense, labels []int, k int) float64 {
	n, _ := x.Dims()
	if k < 2 || n != len(labels) || n < 2 {
		return 0
	}

	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	populated := 0
	for _, s := range sizes {
		if s > 0 {
			populated++
		}
	}
	if populated < 2 {
		return 0
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	scores := make([]float64, n)
	sums := make([]float64, k)
	for i := range rows {
		if sizes[labels[i]] < 2 {
			continue
		}
		for c := range sums {
			sums[c] = 0
		}
		for j := range rows {
			if i == j {
				continue
			}
			sums[labels[j]] += floats.Distance(rows[i], rows[j], 2)
		}

		a := sums[labels[i]] / float64(sizes[labels[i]]-1)
		b := -1.0
		for c, s := range sums {
			if c == labels[i] || sizes[c] == 0 {
				continue
			}
			if mean := s / float64(sizes[c]); b < 0 || mean < b {
				b = mean
			}
		}

		if denom := max(a, b); denom > 0 {
			scores[i] = (b - a) / denom
		}
	}
	return stat.Mean(scores, nil)
}
