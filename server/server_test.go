package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/cluster"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/metric"
)

// tableEncoder maps each text to a fixed 2-d vector
type tableEncoder struct {
	err error
}

var tableVectors = map[string][]float32{
	"refund a": {0, 0}, "refund b": {0, 1}, "refund c": {1, 0},
	"login a": {10, 10}, "login b": {10, 11}, "login c": {11, 10},
}

func (e *tableEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := tableVectors[t]
		if !ok {
			v = []float32{5, 5}
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEncoder) ModelInfo() embeddings.ModelInfo {
	return embeddings.ModelInfo{Name: "table", Backend: "test", Dimensions: 2}
}

func (e *tableEncoder) Close() error { return nil }

type testServer struct {
	*Server
	url string
	cfg *am.Config
}

func newTestServer(t *testing.T, enc embeddings.Encoder, mutate ...func(*am.Config)) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	cfg := am.DefaultConfig()
	cfg.Clustering.MinClusterSize = 3
	cfg.Clustering.MaxConcurrent = 2
	cfg.Server.AllowedOrigins = []string{"http://localhost"}
	for _, m := range mutate {
		m(cfg)
	}

	models := embeddings.NewRegistry("table", log)
	require.NoError(t, models.Register("table", enc))
	require.NoError(t, models.Initialize(context.Background()))

	reg := metric.NewRegistry()
	svc, err := cluster.NewService(models, cfg.Clustering, reg.Metrics, log)
	require.NoError(t, err)

	srv, err := New(cfg, svc, models, reg, log)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: srv, url: ts.URL, cfg: cfg}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.url+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.url + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestClusterEndpoint(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	for _, path := range []string{"/cluster", "/api/cluster"} {
		t.Run(path, func(t *testing.T) {
			resp := ts.post(t, path, map[string]interface{}{
				"texts":   []string{"refund a", "login a", "refund b", "login b", "refund c", "login c"},
				"weights": []int64{1, 10, 2, 10, 3, 10},
			})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var out cluster.Response
			decode(t, resp, &out)
			assert.Equal(t, 2, out.TotalClusters)
			assert.Equal(t, "table", out.Model)
			assert.Equal(t, 2, out.Dimensions)
			require.Len(t, out.Clusters, 2)
			assert.Equal(t, []string{"login a", "login b", "login c"}, out.Clusters[0].Texts())
			assert.Equal(t, int64(30), out.Clusters[0].TotalWeight)
			assert.Equal(t, 0, out.NoiseCount)
		})
	}
}

func TestClusterVectorsEndpoint(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	resp := ts.post(t, "/cluster/vectors", cluster.VectorsRequest{
		Texts:   []string{"a", "b", "c", "x", "y", "z"},
		Vectors: [][]float32{{0, 0}, {0, 1}, {1, 0}, {9, 9}, {9, 10}, {10, 9}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out cluster.Response
	decode(t, resp, &out)
	assert.Equal(t, 2, out.TotalClusters)
	assert.Empty(t, out.Model)
}

func TestClusterErrorStatus(t *testing.T) {
	unavailable := errors.WrapCollaborator(
		errors.Mark(errors.New("connection refused"), embeddings.ErrModelUnavailable), "encode texts")
	badOutput := errors.WrapCollaborator(
		errors.Mark(errors.New("short reply"), embeddings.ErrEncoding), "encode texts")

	tests := []struct {
		name     string
		encErr   error
		body     map[string]interface{}
		wantCode int
		wantKind string
	}{
		{
			name:     "empty texts",
			body:     map[string]interface{}{"texts": []string{}},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "too few items",
			body:     map[string]interface{}{"texts": []string{"a", "b"}},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "negative weight",
			body:     map[string]interface{}{"texts": []string{"a", "b", "c"}, "weights": []int64{1, -1, 1}},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "unknown metric",
			body:     map[string]interface{}{"texts": []string{"a", "b", "c"}, "metric": "hamming"},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "unknown model",
			body:     map[string]interface{}{"texts": []string{"a", "b", "c"}, "model": "nope"},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "model unavailable",
			encErr:   unavailable,
			body:     map[string]interface{}{"texts": []string{"a", "b", "c"}},
			wantCode: http.StatusServiceUnavailable,
			wantKind: "collaborator_failure",
		},
		{
			name:     "bad backend output",
			encErr:   badOutput,
			body:     map[string]interface{}{"texts": []string{"a", "b", "c"}},
			wantCode: http.StatusBadGateway,
			wantKind: "collaborator_failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &tableEncoder{err: tt.encErr})

			resp := ts.post(t, "/cluster", tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var body errorBody
			decode(t, resp, &body)
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, body.Error, body.Detail)
		})
	}
}

func TestClusterHintsReturned(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{}, func(c *am.Config) { c.Clustering.MaxItems = 3 })

	resp := ts.post(t, "/cluster", map[string]interface{}{"texts": []string{"a", "b", "c", "d"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decode(t, resp, &body)
	assert.NotEmpty(t, body.Hints)
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	resp, err := http.Post(ts.url+"/cluster", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{}, func(c *am.Config) { c.Server.MaxBodyBytes = 64 })

	texts := make([]string, 50)
	for i := range texts {
		texts[i] = "refund a"
	}
	resp := ts.post(t, "/cluster", map[string]interface{}{"texts": texts})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	resp := ts.get(t, "/cluster")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))

	resp = ts.post(t, "/models", map[string]string{})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEmbedEndpoint(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	resp := ts.post(t, "/embed", embeddings.EmbedRequest{Model: "table", Texts: []string{"login a", "refund b"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out embeddings.EmbedResponse
	decode(t, resp, &out)
	assert.Equal(t, [][]float32{{10, 10}, {0, 1}}, out.Embeddings)
}

func TestEmbedErrorsMatchFlagEmbedding(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	tests := []struct {
		name       string
		req        embeddings.EmbedRequest
		wantDetail string
	}{
		{
			name:       "model not loaded",
			req:        embeddings.EmbedRequest{Model: "BAAI/bge-m3", Texts: []string{"x"}},
			wantDetail: `Model "BAAI/bge-m3" not loaded.`,
		},
		{
			name:       "empty texts",
			req:        embeddings.EmbedRequest{Model: "table"},
			wantDetail: `"texts" cannot be empty.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(t, "/embed", tt.req)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body errorBody
			decode(t, resp, &body)
			assert.Equal(t, tt.wantDetail, body.Detail)
		})
	}
}

func TestEmbedEndpointServesEmbeddingClient(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	client, err := embeddings.NewClient(embeddings.ClientConfig{BaseURL: ts.url, Timeout: 5 * time.Second}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	names, err := client.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"table"}, names)

	vectors, err := client.Embed(context.Background(), "table", []string{"refund c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}}, vectors)

	_, err = client.Embed(context.Background(), "missing", []string{"x"})
	require.Error(t, err)
	assert.True(t, embeddings.IsModelUnavailable(err), "a semcluster server can back another one")
}

func TestModelsEndpoint(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	resp := ts.get(t, "/models")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out modelsResponse
	decode(t, resp, &out)
	assert.Equal(t, []string{"table"}, out.LoadedModels)
	assert.Equal(t, "table", out.DefaultModel)
	require.Len(t, out.Models, 1)
	assert.Equal(t, "test", out.Models[0].Backend)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	resp := ts.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out HealthResponse
	decode(t, resp, &out)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "running", out.State)
	assert.Equal(t, "table", out.DefaultModel)
	assert.Equal(t, int64(2), out.MaxConcurrent)
	assert.NotEmpty(t, out.GoVersion)
	require.NotNil(t, out.System)
	assert.Positive(t, out.System.LogicalCPUs)
}

func TestDrainingRejectsWork(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})
	ts.setState(ServerStateDraining)

	resp := ts.post(t, "/cluster", map[string]interface{}{"texts": []string{"a", "b", "c"}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = ts.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var out HealthResponse
	decode(t, resp, &out)
	assert.Equal(t, "draining", out.State)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	resp := ts.get(t, "/models")
	_, err := uuid.Parse(resp.Header.Get(headerRequestID))
	assert.NoError(t, err, "a request id is generated when none is sent")

	req, err := http.NewRequest(http.MethodGet, ts.url+"/models", nil)
	require.NoError(t, err)
	req.Header.Set(headerRequestID, "trace-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-42", resp.Header.Get(headerRequestID))
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:5173", "http://localhost:5173"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, ts.url+"/cluster", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	allowed := []string{"http://localhost", "https://app.example.com"}

	assert.True(t, checkOrigin("", allowed))
	assert.True(t, checkOrigin("http://localhost:8080", allowed))
	assert.True(t, checkOrigin("https://app.example.com", allowed))
	assert.False(t, checkOrigin("http://127.0.0.1", allowed))
	assert.True(t, checkOrigin("http://anything", []string{"*"}))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})
	ts.get(t, "/models")

	resp := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "semcluster_http_requests_total")
}

func TestMetricsDisabled(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{}, func(c *am.Config) { c.Metrics.Enabled = false })

	resp := ts.get(t, "/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClusteringSlotTimeout(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})
	ts.requestTimeout.Store(int64(50 * time.Millisecond))

	// occupy every slot
	require.NoError(t, ts.sem.Acquire(context.Background(), ts.maxConcurrent))
	defer ts.sem.Release(ts.maxConcurrent)

	resp := ts.post(t, "/cluster", map[string]interface{}{"texts": []string{"refund a", "refund b", "refund c"}})
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestApplyConfig(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})

	next := am.DefaultConfig()
	next.Clustering.MinClusterSize = 4
	next.Server.AllowedOrigins = []string{"https://app.example.com"}
	require.NoError(t, ts.ApplyConfig(next))

	assert.Equal(t, 4, ts.service.Defaults().MinClusterSize)
	assert.Equal(t, []string{"https://app.example.com"}, ts.allowedOrigins())

	bad := am.DefaultConfig()
	bad.Clustering.MinClusterSize = 1
	assert.Error(t, ts.ApplyConfig(bad))
	assert.Equal(t, 4, ts.service.Defaults().MinClusterSize, "invalid config keeps previous defaults")
}

func TestStopIsGraceful(t *testing.T) {
	ts := newTestServer(t, &tableEncoder{})
	require.NoError(t, ts.Stop())
	assert.Equal(t, ServerStateStopped, ts.getState())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", errors.NewInvalidInputError("bad"), http.StatusBadRequest},
		{"not found", errors.Wrap(errors.ErrNotFound, "x"), http.StatusNotFound},
		{"collaborator", errors.WrapCollaborator(errors.New("boom"), "encode"), http.StatusBadGateway},
		{"model unavailable", errors.WrapCollaborator(errors.Mark(errors.New("down"), embeddings.ErrModelUnavailable), "encode"), http.StatusServiceUnavailable},
		{"computation", errors.NewComputationError("distance", "NaN"), http.StatusInternalServerError},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "encode"), http.StatusGatewayTimeout},
		{"deadline inside collaborator", errors.WrapCollaborator(context.DeadlineExceeded, "encode"), http.StatusGatewayTimeout},
		{"canceled", context.Canceled, http.StatusRequestTimeout},
		{"unclassified", errors.New("?"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
