package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Dims is the width of a feature row: 24 shape values, the seasonal
	// feature and the variability feature.
	Dims = HoursPerDay + 2

	// SeasonalCol and VariabilityCol index the two scalar columns.
	SeasonalCol    = HoursPerDay
	VariabilityCol = HoursPerDay + 1
)

// Policy is the normalisation and weighting applied when building the
// feature matrix. The weights make seasonality and variability count more
// than any single shape hour in the Euclidean distance.
type Policy struct {
	SeasonalScale     float64 // ratio is divided by this before capping
	VariabilityScale  float64 // variability is divided by this before capping
	Cap               float64 // upper bound for both scaled scalars
	SeasonalWeight    float64
	VariabilityWeight float64
}

// DefaultPolicy returns scale 4.0/2.0, cap 1.5 and weights 3.0/2.0.
func DefaultPolicy() Policy {
	return Policy{
		SeasonalScale:     4.0,
		VariabilityScale:  2.0,
		Cap:               1.5,
		SeasonalWeight:    3.0,
		VariabilityWeight: 2.0,
	}
}

// Matrix is the n×Dims weighted feature matrix with its row order.
type Matrix struct {
	X   *mat.Dense
	IDs []string
}

// Rows returns the number of customers in the matrix.
func (m *Matrix) Rows() int {
	return len(m.IDs)
}

// NormalizeShape divides a profile by its own maximum. A profile whose
// maximum is 0 is divided by 1.
func NormalizeShape(profile [HoursPerDay]float64) [HoursPerDay]float64 {
	out := profile
	max := floats.Max(out[:])
	if max == 0 {
		max = 1
	}
	floats.Scale(1/max, out[:])
	return out
}

// Row returns the unweighted feature row for one customer.
func (p Policy) Row(f CustomerFeatures) []float64 {
	row := make([]float64, Dims)
	shape := NormalizeShape(f.HourlyProfile)
	copy(row, shape[:])
	row[SeasonalCol] = math.Min(f.RatioWinterSummer/p.SeasonalScale, p.Cap)
	row[VariabilityCol] = math.Min(f.Variability/p.VariabilityScale, p.Cap)
	return row
}

// BuildMatrix assembles the weighted matrix for a batch. Rows are ordered by
// ascending customer id so repeated runs see identical input.
func BuildMatrix(feats map[string]CustomerFeatures, p Policy) (*Matrix, error) {
	if len(feats) == 0 {
		return nil, ErrEmptyBatch
	}
	if p.SeasonalScale <= 0 || p.VariabilityScale <= 0 {
		return nil, fmt.Errorf("feature scales must be positive, got %g and %g", p.SeasonalScale, p.VariabilityScale)
	}

	ids := SortedIDs(feats)
	x := mat.NewDense(len(ids), Dims, nil)
	for i, id := range ids {
		x.SetRow(i, p.Row(feats[id]))
	}

	// Column weighting is applied after assembly across the whole matrix.
	seasonal := mat.Col(nil, SeasonalCol, x)
	floats.Scale(p.SeasonalWeight, seasonal)
	x.SetCol(SeasonalCol, seasonal)

	variability := mat.Col(nil, VariabilityCol, x)
	floats.Scale(p.VariabilityWeight, variability)
	x.SetCol(VariabilityCol, variability)

	return &Matrix{X: x, IDs: ids}, nil
}

// Unweight maps a weighted row (e.g. a cluster centroid) back to the
// unweighted feature space: shape values are returned unchanged and the
// two scalar columns are divided by their weights.
func (p Policy) Unweight(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	if len(out) == Dims {
		if p.SeasonalWeight != 0 {
			out[SeasonalCol] /= p.SeasonalWeight
		}
		if p.VariabilityWeight != 0 {
			out[VariabilityCol] /= p.VariabilityWeight
		}
	}
	return out
}

// Interpret converts an unweighted row's scalar columns back into an
// approximate seasonal ratio and variability. Values that hit the cap
// are lower bounds.
func (p Policy) Interpret(unweighted []float64) (ratio, variability float64) {
	return unweighted[SeasonalCol] * p.SeasonalScale, unweighted[VariabilityCol] * p.VariabilityScale
}
