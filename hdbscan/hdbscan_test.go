package hdbscan

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/semcluster/errors"
)

func twoGroups() [][]float32 {
	return [][]float32{
		{0, 0}, {0, 1}, {1, 0},
		{10, 10}, {10, 11}, {11, 10},
	}
}

func tightWithOutliers() [][]float32 {
	return [][]float32{
		{0, 0},
		{50, 50}, // outlier
		{0, 1},
		{1, 0},
		{-50, 50}, // outlier
		{1, 1},
		{0.5, 0.5},
	}
}

func params(minClusterSize int) Params {
	p := DefaultParams()
	p.MinClusterSize = minClusterSize
	return p
}

// groupsOf returns, per label, the member indices in ascending order
func groupsOf(labels []int) map[int][]int {
	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	return groups
}

func TestClusterTwoGroups(t *testing.T) {
	result, err := Cluster(context.Background(), twoGroups(), params(3))
	require.NoError(t, err)

	assert.Equal(t, 2, result.NClusters)
	assert.Equal(t, 0, result.NNoise)
	assert.Equal(t, 6, result.NPoints)

	groups := groupsOf(result.Labels)
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, [][]int{{0, 1, 2}, {3, 4, 5}}, [][]int{groups[result.Labels[0]], groups[result.Labels[3]]})
	assert.NotEqual(t, result.Labels[0], result.Labels[3])

	require.Len(t, result.Centroids, 2)
	assert.InDeltaSlice(t, []float32{1.0 / 3, 1.0 / 3}, result.Centroids[result.Labels[0]], 1e-6)
}

func TestClusterTightGroupWithOutliers(t *testing.T) {
	result, err := Cluster(context.Background(), tightWithOutliers(), params(5))
	require.NoError(t, err)

	assert.Equal(t, 1, result.NClusters)
	assert.Equal(t, 2, result.NNoise)
	assert.Equal(t, Noise, result.Labels[1])
	assert.Equal(t, Noise, result.Labels[4])
	for _, i := range []int{0, 2, 3, 5, 6} {
		assert.Equal(t, 0, result.Labels[i], "point %d", i)
		assert.Equal(t, 1.0, result.Probabilities[i], "point %d", i)
	}
	assert.Equal(t, 0.0, result.Probabilities[1])
}

func TestClusterIdenticalPoints(t *testing.T) {
	vectors := make([][]float32, 6)
	for i := range vectors {
		vectors[i] = []float32{1, 2, 3}
	}

	result, err := Cluster(context.Background(), vectors, params(3))
	require.NoError(t, err)

	assert.Equal(t, 1, result.NClusters)
	assert.Equal(t, 0, result.NNoise)
	for i, l := range result.Labels {
		assert.Equal(t, 0, l, "point %d", i)
		assert.Equal(t, 1.0, result.Probabilities[i])
	}
}

func TestClusterIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vectors := make([][]float32, 80)
	for i := range vectors {
		center := float32(i%3) * 8
		vectors[i] = []float32{
			center + float32(rng.NormFloat64()),
			center + float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
		}
	}

	for _, metric := range Metrics {
		t.Run(string(metric), func(t *testing.T) {
			p := params(5)
			p.Metric = metric

			first, err := Cluster(context.Background(), vectors, p)
			require.NoError(t, err)
			second, err := Cluster(context.Background(), vectors, p)
			require.NoError(t, err)

			assert.Equal(t, first.Labels, second.Labels)
			assert.Equal(t, first.Probabilities, second.Probabilities)
			assert.Equal(t, first.Tree.Edges, second.Tree.Edges)
		})
	}
}

func TestClusterPartitionInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		n := 10 + rng.Intn(60)
		vectors := make([][]float32, n)
		for i := range vectors {
			vectors[i] = []float32{float32(rng.Float64() * 10), float32(rng.Float64() * 10)}
		}
		p := params(2 + rng.Intn(5))
		p.MinSamples = rng.Intn(4)

		result, err := Cluster(context.Background(), vectors, p)
		require.NoError(t, err)
		require.Len(t, result.Labels, n)

		noise := 0
		for _, l := range result.Labels {
			assert.True(t, l == Noise || (l >= 0 && l < result.NClusters))
			if l == Noise {
				noise++
			}
		}
		assert.Equal(t, noise, result.NNoise)
		for _, prob := range result.Probabilities {
			assert.True(t, prob >= 0 && prob <= 1)
		}
	}
}

func TestClusterEpsilonMergesSiblings(t *testing.T) {
	p := params(3)
	p.ClusterSelectionEpsilon = 1.0
	result, err := Cluster(context.Background(), twoGroups(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NClusters, "groups split far above epsilon stay apart")

	p.ClusterSelectionEpsilon = 20
	result, err = Cluster(context.Background(), twoGroups(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NClusters)
	assert.Equal(t, 0, result.NNoise)
}

func TestClusterMinSamplesOne(t *testing.T) {
	p := params(3)
	p.MinSamples = 1
	result, err := Cluster(context.Background(), twoGroups(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NClusters)
}

func TestClusterAlphaDefaultsToOne(t *testing.T) {
	p := params(3)
	p.Alpha = 0
	result, err := Cluster(context.Background(), twoGroups(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NClusters)
}

func TestClusterRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		n      int
	}{
		{"too few items", func(p *Params) { p.MinClusterSize = 5 }, 3},
		{"min cluster size 1", func(p *Params) { p.MinClusterSize = 1 }, 6},
		{"negative min samples", func(p *Params) { p.MinSamples = -1 }, 6},
		{"unknown metric", func(p *Params) { p.Metric = "hamming" }, 6},
		{"negative epsilon", func(p *Params) { p.ClusterSelectionEpsilon = -1 }, 6},
		{"nan epsilon", func(p *Params) { p.ClusterSelectionEpsilon = math.NaN() }, 6},
		{"negative alpha", func(p *Params) { p.Alpha = -1 }, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params(3)
			tt.mutate(&p)
			_, err := Cluster(context.Background(), twoGroups()[:tt.n], p)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestClusterRejectsBadVectors(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name    string
		vectors [][]float32
		metric  Metric
		stage   string
	}{
		{"nan", [][]float32{{0, 0}, {nan, 1}, {1, 1}}, Euclidean, "validate vectors"},
		{"inf", [][]float32{{0, 0}, {1, inf}, {1, 1}}, Euclidean, "validate vectors"},
		{"ragged", [][]float32{{0, 0}, {1}, {1, 1}}, Euclidean, "validate vectors"},
		{"empty vector", [][]float32{{}, {}, {}}, Euclidean, "validate vectors"},
		{"cosine zero vector", [][]float32{{0, 0}, {1, 1}, {1, 2}}, Cosine, "distance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params(2)
			p.Metric = tt.metric
			_, err := Cluster(context.Background(), tt.vectors, p)
			require.Error(t, err)
			assert.True(t, errors.IsComputationFailure(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.stage)
		})
	}
}

func TestClusterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Cluster(ctx, twoGroups(), params(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
