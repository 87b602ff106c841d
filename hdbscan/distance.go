package hdbscan

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/semcluster/errors"
)

type distanceFunc func(a, b []float32) float64

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattan(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

func chebyshev(a, b []float32) float64 {
	var largest float64
	for i := range a {
		if d := math.Abs(float64(a[i]) - float64(b[i])); d > largest {
			largest = d
		}
	}
	return largest
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Distance computes metric between a and b. Cosine on a zero vector is a
// computation failure.
func Distance(metric Metric, a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.NewComputationError("distance", "dimension mismatch %d != %d", len(a), len(b))
	}
	switch metric {
	case Euclidean, "":
		return euclidean(a, b), nil
	case Manhattan:
		return manhattan(a, b), nil
	case Chebyshev:
		return chebyshev(a, b), nil
	case Cosine:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0, errors.NewComputationError("distance", "cosine distance undefined for a zero vector")
		}
		return cosineFromNorms(a, b, na, nb), nil
	default:
		return 0, errors.NewInvalidInputError("unknown metric %q", metric)
	}
}

func cosineFromNorms(a, b []float32, na, nb float64) float64 {
	d := 1 - dot(a, b)/(na*nb)
	// rounding can push identical directions slightly below zero
	if d < 0 {
		return 0
	}
	return d
}

// distanceMatrix is the strict upper triangle of a symmetric n×n matrix
type distanceMatrix struct {
	n    int
	data []float64
}

func (m *distanceMatrix) index(i, j int) int {
	if i > j {
		i, j = j, i
	}
	return i*m.n - i*(i+1)/2 + (j - i - 1)
}

// at returns d(i, j); the diagonal is zero
func (m *distanceMatrix) at(i, j int) float64 {
	if i == j {
		return 0
	}
	return m.data[m.index(i, j)]
}

// pairwiseDistances fills the matrix row by row across GOMAXPROCS workers.
// Each row writes a disjoint slice, so the result does not depend on scheduling.
func pairwiseDistances(ctx context.Context, vectors [][]float32, metric Metric) (*distanceMatrix, error) {
	n := len(vectors)
	m := &distanceMatrix{n: n, data: make([]float64, n*(n-1)/2)}

	var fn distanceFunc
	var norms []float64
	switch metric {
	case Euclidean, "":
		fn = euclidean
	case Manhattan:
		fn = manhattan
	case Chebyshev:
		fn = chebyshev
	case Cosine:
		norms = make([]float64, n)
		for i, v := range vectors {
			norms[i] = math.Sqrt(dot(v, v))
			if norms[i] == 0 {
				return nil, errors.WithHint(
					errors.NewComputationError("distance", "cosine distance undefined: vector %d has zero norm", i),
					"use the euclidean metric or drop empty inputs")
			}
		}
	default:
		return nil, errors.NewInvalidInputError("unknown metric %q", metric)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < n-1; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := m.data[m.index(i, i+1) : m.index(i, n-1)+1]
			for j := i + 1; j < n; j++ {
				var d float64
				if norms != nil {
					d = cosineFromNorms(vectors[i], vectors[j], norms[i], norms[j])
				} else {
					d = fn(vectors[i], vectors[j])
				}
				if math.IsNaN(d) || math.IsInf(d, 0) {
					return errors.NewComputationError("distance", "non-finite distance between %d and %d", i, j)
				}
				row[j-i-1] = d
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}
