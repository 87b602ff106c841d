package cluster

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/hdbscan"
	"github.com/teranos/semcluster/internal/util"
	"github.com/teranos/semcluster/metric"
)

// lookupEncoder maps each text to a fixed vector
type lookupEncoder struct {
	vectors map[string][]float32
	calls   int
	err     error
	mangle  func([][]float32) [][]float32
}

func (e *lookupEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectors[t]
	}
	if e.mangle != nil {
		out = e.mangle(out)
	}
	return out, nil
}

func (e *lookupEncoder) ModelInfo() embeddings.ModelInfo {
	return embeddings.ModelInfo{Name: "lookup", Backend: "test", Dimensions: 2}
}

func (e *lookupEncoder) Close() error { return nil }

type singleModel struct {
	enc embeddings.Encoder
}

func (m singleModel) Get(name string) (embeddings.Encoder, error) {
	if name != "" && name != "lookup" {
		return nil, errors.NewInvalidInputError("model %q not loaded", name)
	}
	return m.enc, nil
}

func (m singleModel) Default() string { return "lookup" }

func testEncoder() *lookupEncoder {
	return &lookupEncoder{vectors: map[string][]float32{
		"refund a": {0, 0}, "refund b": {0, 1}, "refund c": {1, 0},
		"login a": {10, 10}, "login b": {10, 11}, "login c": {11, 10},
		"core 1": {0, 0}, "core 2": {0, 1}, "core 3": {1, 0}, "core 4": {1, 1}, "core 5": {0.5, 0.5},
		"far 1": {50, 50}, "far 2": {-50, 50},
		"same": {3, 3},
		"nan": {float32(math.NaN()), 0},
	}}
}

func testConfig() am.ClusteringConfig {
	return am.DefaultConfig().Clustering
}

func newTestService(t *testing.T, enc embeddings.Encoder, m *metric.Metrics) *Service {
	t.Helper()
	s, err := NewService(singleModel{enc: enc}, testConfig(), m, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return s
}

func TestClusterTwoWeightedGroups(t *testing.T) {
	s := newTestService(t, testEncoder(), nil)

	resp, err := s.Cluster(context.Background(), Request{
		Texts:   []string{"refund a", "login a", "refund b", "login b", "refund c", "login c"},
		Weights: []int64{1, 10, 2, 10, 3, 10},
		Options: Options{MinClusterSize: util.Ptr(3)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalClusters)
	assert.Equal(t, 0, resp.NoiseCount)
	assert.Equal(t, 6, resp.ClusteredCount)
	assert.Equal(t, "lookup", resp.Model)
	assert.Equal(t, 2, resp.Dimensions)
	assert.Equal(t, 3, resp.Params.MinClusterSize)
	assert.Equal(t, hdbscan.Euclidean, resp.Params.Metric)

	require.Len(t, resp.Clusters, 2)
	assert.Equal(t, []string{"login a", "login b", "login c"}, resp.Clusters[0].Texts(), "heavier group ranks first")
	assert.Equal(t, int64(30), resp.Clusters[0].TotalWeight)
	assert.Equal(t, []string{"refund a", "refund b", "refund c"}, resp.Clusters[1].Texts())
	assert.Equal(t, int64(6), resp.Clusters[1].TotalWeight)
	assert.Equal(t, 2.0, resp.Clusters[1].AvgWeight)
	assert.Equal(t, 3, resp.Clusters[1].Size)
}

func TestClusterTightGroupWithOutliers(t *testing.T) {
	s := newTestService(t, testEncoder(), nil)

	resp, err := s.Cluster(context.Background(), Request{
		Texts: []string{"core 1", "far 1", "core 2", "core 3", "far 2", "core 4", "core 5"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.TotalClusters)
	assert.Equal(t, 2, resp.NoiseCount)
	assert.Equal(t, []int{1, 4}, resp.Noise.Indices)
	assert.Equal(t, []string{"far 1", "far 2"}, resp.Noise.Texts)
	assert.Equal(t, []int64{1, 1}, resp.Noise.Weights)
	assert.Equal(t, 7, resp.ClusteredCount+resp.NoiseCount)
}

func TestClusterIdenticalPoints(t *testing.T) {
	s := newTestService(t, testEncoder(), nil)

	resp, err := s.Cluster(context.Background(), Request{
		Texts: []string{"same", "same", "same", "same", "same"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalClusters)
	assert.Equal(t, 0, resp.NoiseCount)
	assert.Equal(t, 5, resp.Clusters[0].Size)
}

func TestClusterRejectsBeforeEncoding(t *testing.T) {
	five := []string{"core 1", "core 2", "core 3", "core 4", "core 5"}

	tests := []struct {
		name string
		req  Request
	}{
		{"empty texts", Request{}},
		{"weights length", Request{Texts: five, Weights: []int64{1, 2}}},
		{"negative weight", Request{Texts: five, Weights: []int64{1, 1, -1, 1, 1}}},
		{"fewer texts than min_cluster_size", Request{Texts: five[:4]}},
		{"min_cluster_size below two", Request{Texts: five, Options: Options{MinClusterSize: util.Ptr(1)}}},
		{"negative min_samples", Request{Texts: five, Options: Options{MinSamples: util.Ptr(-2)}}},
		{"unknown metric", Request{Texts: five, Options: Options{Metric: "hamming"}}},
		{"negative epsilon", Request{Texts: five, Options: Options{ClusterSelectionEpsilon: util.Ptr(-0.5)}}},
		{"zero alpha", Request{Texts: five, Options: Options{Alpha: util.Ptr(0.0)}}},
		{"unknown model", Request{Texts: five, Model: "gpt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := testEncoder()
			s := newTestService(t, enc, nil)

			_, err := s.Cluster(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidInput(err), "got %v", err)
			assert.Equal(t, 0, enc.calls, "vector source must not be called")
		})
	}
}

func TestClusterRejectsOverMaxItems(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItems = 6
	s, err := NewService(singleModel{enc: testEncoder()}, cfg, nil, nil)
	require.NoError(t, err)

	_, err = s.Cluster(context.Background(), Request{Texts: make([]string, 7)})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestClusterCollaboratorFailures(t *testing.T) {
	texts := []string{"core 1", "core 2", "core 3", "core 4", "core 5"}

	t.Run("encoder error is wrapped", func(t *testing.T) {
		enc := testEncoder()
		enc.err = errors.New("connection refused")
		_, err := newTestService(t, enc, nil).Cluster(context.Background(), Request{Texts: texts})
		require.Error(t, err)
		assert.True(t, errors.IsCollaboratorFailure(err))
		assert.False(t, errors.IsComputationFailure(err))
	})

	t.Run("typed encoder error passes through", func(t *testing.T) {
		enc := testEncoder()
		enc.err = errors.Mark(errors.Mark(errors.New("not loaded"), embeddings.ErrModelUnavailable), errors.ErrCollaboratorFailure)
		_, err := newTestService(t, enc, nil).Cluster(context.Background(), Request{Texts: texts})
		assert.True(t, embeddings.IsModelUnavailable(err))
	})

	t.Run("missing vector", func(t *testing.T) {
		enc := testEncoder()
		enc.mangle = func(v [][]float32) [][]float32 { return v[1:] }
		_, err := newTestService(t, enc, nil).Cluster(context.Background(), Request{Texts: texts})
		assert.True(t, errors.IsCollaboratorFailure(err))
		assert.True(t, embeddings.IsEncodingError(err))
	})

	t.Run("ragged vectors", func(t *testing.T) {
		enc := testEncoder()
		enc.mangle = func(v [][]float32) [][]float32 {
			v[2] = []float32{1, 2, 3}
			return v
		}
		_, err := newTestService(t, enc, nil).Cluster(context.Background(), Request{Texts: texts})
		assert.True(t, errors.IsCollaboratorFailure(err))
	})
}

func TestClusterNonFiniteVectorIsComputationFailure(t *testing.T) {
	s := newTestService(t, testEncoder(), nil)
	_, err := s.Cluster(context.Background(), Request{
		Texts: []string{"core 1", "core 2", "nan", "core 4", "core 5"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsComputationFailure(err))
	assert.Contains(t, err.Error(), "validate vectors")
}

func TestClusterVectors(t *testing.T) {
	s, err := NewService(nil, testConfig(), nil, nil)
	require.NoError(t, err)

	resp, err := s.ClusterVectors(context.Background(), VectorsRequest{
		Texts:   []string{"a", "b", "c", "d", "e", "f"},
		Vectors: [][]float32{{0, 0}, {0, 1}, {1, 0}, {10, 10}, {10, 11}, {11, 10}},
		Options: Options{MinClusterSize: util.Ptr(3), Metric: "Manhattan"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalClusters)
	assert.Equal(t, hdbscan.Manhattan, resp.Params.Metric)
	assert.Empty(t, resp.Model)

	_, err = s.ClusterVectors(context.Background(), VectorsRequest{
		Texts:   []string{"a", "b", "c", "d", "e"},
		Vectors: [][]float32{{0}, {0}, {0, 1}, {0}, {0}},
	})
	assert.True(t, errors.IsInvalidInput(err), "ragged caller vectors are the caller's fault")

	_, err = s.ClusterVectors(context.Background(), VectorsRequest{
		Texts:   []string{"a", "b", "c", "d", "e"},
		Vectors: [][]float32{{0}},
	})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestClusterIsDeterministic(t *testing.T) {
	s := newTestService(t, testEncoder(), nil)
	req := Request{
		Texts:   []string{"core 1", "far 1", "login a", "core 2", "login b", "core 3", "login c", "far 2", "core 4"},
		Options: Options{MinClusterSize: util.Ptr(3)},
	}

	first, err := s.Cluster(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Cluster(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.Result, again.Result)
	}
}

func TestUpdateConfig(t *testing.T) {
	s := newTestService(t, testEncoder(), nil)
	assert.Equal(t, 5, s.Defaults().MinClusterSize)

	cfg := testConfig()
	cfg.MinClusterSize = 3
	cfg.Metric = "cosine"
	require.NoError(t, s.UpdateConfig(cfg))
	assert.Equal(t, 3, s.Defaults().MinClusterSize)
	assert.Equal(t, hdbscan.Cosine, s.Defaults().Metric)

	bad := testConfig()
	bad.Metric = "hamming"
	assert.Error(t, s.UpdateConfig(bad))
	assert.Equal(t, hdbscan.Cosine, s.Defaults().Metric, "a rejected update keeps the previous defaults")
}

func TestOptionsApply(t *testing.T) {
	defaults := hdbscan.DefaultParams()

	p, err := Options{}.Apply(defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, p)

	p, err = Options{
		MinClusterSize:          util.Ptr(4),
		MinSamples:              util.Ptr(2),
		Metric:                  "CHEBYSHEV",
		ClusterSelectionEpsilon: util.Ptr(0.25),
		Alpha:                   util.Ptr(1.5),
	}.Apply(defaults)
	require.NoError(t, err)
	assert.Equal(t, hdbscan.Params{
		MinClusterSize:          4,
		MinSamples:              2,
		Metric:                  hdbscan.Chebyshev,
		ClusterSelectionEpsilon: 0.25,
		Alpha:                   1.5,
	}, p)
}

func TestClusterRecordsMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	s := newTestService(t, testEncoder(), reg.Metrics)

	_, err := s.Cluster(context.Background(), Request{Texts: []string{"same", "same", "same", "same", "same"}})
	require.NoError(t, err)
	_, err = s.Cluster(context.Background(), Request{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Metrics.Clusterings.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Metrics.Clusterings.WithLabelValues("invalid_input")))
	assert.Equal(t, 5.0, testutil.ToFloat64(reg.Metrics.TextsEncoded.WithLabelValues("lookup")))
}

func TestClusterCancelled(t *testing.T) {
	s := newTestService(t, testEncoder(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Cluster(ctx, Request{Texts: []string{"same", "same", "same", "same", "same"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
