package cluster

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Score is the diagnostic row for one candidate K.
type Score struct {
	K          int
	Inertia    float64
	Silhouette float64
}

// Selection is the outcome of a K search.
type Selection struct {
	BestK  int
	Best   *Result
	Scores []Score
}

// BestScore returns the score row of the chosen K.
func (s *Selection) BestScore() Score {
	for _, sc := range s.Scores {
		if sc.K == s.BestK {
			return sc
		}
	}
	return Score{K: s.BestK}
}

// SearchRange clamps [kMin, kMax] to the counts that can be scored on n
// rows: at least 2 clusters and at most n-1.
func SearchRange(kMin, kMax, n int) (lo, hi int, err error) {
	lo = max(kMin, 2)
	hi = min(kMax, n-1)
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: no candidate in [%d, %d] for %d customers", ErrInvalidK, kMin, kMax, n)
	}
	return lo, hi, nil
}

// SelectK fits every K in the clamped range and keeps the one with the
// highest silhouette score. Ties go to the smallest K.
func SelectK(x *mat.Dense, engine Clusterer, kMin, kMax int) (*Selection, error) {
	n, _ := x.Dims()
	lo, hi, err := SearchRange(kMin, kMax, n)
	if err != nil {
		return nil, err
	}

	sel := &Selection{}
	bestSil := 0.0
	for k := lo; k <= hi; k++ {
		res, err := engine.Fit(x, k)
		if err != nil {
			return nil, fmt.Errorf("fit k=%d: %w", k, err)
		}
		sil := Silhouette(x, res.Labels, k)
		sel.Scores = append(sel.Scores, Score{K: k, Inertia: res.Inertia, Silhouette: sil})
		if sel.Best == nil || sil > bestSil {
			sel.BestK, sel.Best, bestSil = k, res, sil
		}
	}
	return sel, nil
}

// WriteTable prints one line per candidate with a bar proportional to the
// silhouette score, followed by the chosen K.
func (s *Selection) WriteTable(w io.Writer) error {
	rule := strings.Repeat("-", 50)
	if _, err := fmt.Fprintln(w, rule); err != nil {
		return err
	}
	for _, sc := range s.Scores {
		bar := ""
		if n := int(sc.Silhouette * 40); n > 0 {
			bar = strings.Repeat("█", n)
		}
		if _, err := fmt.Fprintf(w, "  k=%2d │ silhouette=%.3f │ %s\n", sc.K, sc.Silhouette, bar); err != nil {
			return err
		}
	}
	best := s.BestScore()
	_, err := fmt.Fprintf(w, "%s\nOptimal: k=%d (silhouette=%.3f)\n", rule, best.K, best.Silhouette)
	return err
}
