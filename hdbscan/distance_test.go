package hdbscan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/semcluster/errors"
)

func TestDistance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	tests := []struct {
		metric Metric
		a, b   []float32
		want   float64
	}{
		{Euclidean, a, b, 5},
		{Manhattan, a, b, 7},
		{Chebyshev, a, b, 4},
		{Cosine, []float32{1, 0}, []float32{0, 1}, 1},
		{Cosine, []float32{2, 2}, []float32{1, 1}, 0},
		{Cosine, []float32{1, 0}, []float32{-1, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			got, err := Distance(tt.metric, tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDistanceErrors(t *testing.T) {
	_, err := Distance(Cosine, []float32{0, 0}, []float32{1, 1})
	assert.True(t, errors.IsComputationFailure(err))

	_, err = Distance(Euclidean, []float32{0}, []float32{1, 1})
	assert.True(t, errors.IsComputationFailure(err))

	_, err = Distance("hamming", []float32{0}, []float32{1})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric(" Cosine ")
	require.NoError(t, err)
	assert.Equal(t, Cosine, m)

	m, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, Euclidean, m)

	_, err = ParseMetric("jaccard")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestPairwiseDistancesMatchesDistance(t *testing.T) {
	vectors := [][]float32{{0, 0}, {3, 4}, {-1, 2}, {5, 5}, {0.5, -2}}

	for _, metric := range []Metric{Euclidean, Manhattan, Chebyshev} {
		dm, err := pairwiseDistances(context.Background(), vectors, metric)
		require.NoError(t, err)

		for i := range vectors {
			for j := range vectors {
				want, err := Distance(metric, vectors[i], vectors[j])
				require.NoError(t, err)
				assert.InDelta(t, want, dm.at(i, j), 1e-9, "%s d(%d,%d)", metric, i, j)
			}
		}
	}
}

func TestCoreDistances(t *testing.T) {
	vectors := [][]float32{{0}, {1}, {3}, {7}}
	dm, err := pairwiseDistances(context.Background(), vectors, Euclidean)
	require.NoError(t, err)

	core, err := coreDistances(context.Background(), dm, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, core)

	// second nearest counting self is the nearest other point
	core, err = coreDistances(context.Background(), dm, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2, 4}, core)

	core, err = coreDistances(context.Background(), dm, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 6, 4, 7}, core)
}

func TestMutualReachability(t *testing.T) {
	vectors := [][]float32{{0}, {1}, {3}, {7}}
	dm, err := pairwiseDistances(context.Background(), vectors, Euclidean)
	require.NoError(t, err)

	mr := &mutualReachability{dm: dm, core: []float64{1, 1, 2, 4}, alpha: 1}
	assert.Equal(t, 1.0, mr.at(0, 1))
	assert.Equal(t, 4.0, mr.at(2, 3))
	assert.Equal(t, 3.0, mr.at(0, 2))

	mr.alpha = 2
	assert.Equal(t, 2.0, mr.at(0, 2), "core distance wins once the raw distance is scaled down")

	mr = &mutualReachability{dm: dm, core: []float64{0, 0, 0, 0}, alpha: 2}
	assert.Equal(t, 3.5, mr.at(0, 3))
}
