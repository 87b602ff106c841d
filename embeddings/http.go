package embeddings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/internal/httpclient"
	"github.com/teranos/semcluster/logger"
)

// maxErrorBody caps how much of an error response is read into messages
const maxErrorBody = 4 << 10

// EmbedRequest is the body of POST /embed on a FlagEmbedding service
type EmbedRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

// EmbedResponse is the reply to POST /embed
type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ModelsResponse is the reply to GET /models
type ModelsResponse struct {
	LoadedModels []string `json:"loaded_models"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting

	// HTTPClient replaces the default transport, e.g. with httptest's
	HTTPClient *http.Client
}

// Client talks to a FlagEmbedding-compatible HTTP service. It is shared by
// every model served from the same base URL so the rate limit applies to
// the backend as a whole.
type Client struct {
	baseURL string
	http    *httpclient.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient validates cfg.BaseURL and builds a client
func NewClient(cfg ClientConfig, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = logger.Logger
	}

	var hc *httpclient.Client
	if cfg.HTTPClient != nil {
		hc = httpclient.Wrap(cfg.HTTPClient)
	} else {
		hc = httpclient.New(httpclient.Options{Timeout: cfg.Timeout})
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := hc.ValidateURL(base); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "invalid embeddings base_url %q", cfg.BaseURL),
			"set embeddings.base_url or SEMCLUSTER_EMBEDDINGS_BASE_URL")
	}

	c := &Client{baseURL: base, http: hc, logger: log}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the normalised backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Models lists the models the backend has loaded
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build models request")
	}

	var out ModelsResponse
	if err := c.do(req, &out); err != nil {
		return nil, modelUnavailable(err, "list models at %s", c.baseURL)
	}
	return out.LoadedModels, nil
}

// Embed sends one POST /embed request. Batching is the caller's job.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, encodingError(err, "rate limiter")
		}
	}

	body, err := json.Marshal(EmbedRequest{Model: model, Texts: texts})
	if err != nil {
		return nil, errors.Wrap(err, "encode embed request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out EmbedResponse
	if err := c.do(req, &out); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.modelMissing() {
			return nil, modelUnavailable(err, "model %s", model)
		}
		if se == nil && ctx.Err() == nil {
			// transport failure: the backend is unreachable
			return nil, modelUnavailable(err, "model %s", model)
		}
		return nil, encodingError(err, "embed %d texts with %s", len(texts), model)
	}
	return out.Embeddings, nil
}

type statusError struct {
	status int
	detail string
}

func (e *statusError) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("backend returned %d", e.status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.status, e.detail)
}

// modelMissing matches the FlagEmbedding reply for an unloaded model
func (e *statusError) modelMissing() bool {
	return (e.status == http.StatusBadRequest && strings.Contains(e.detail, "not loaded")) ||
		e.status == http.StatusNotFound ||
		e.status == http.StatusServiceUnavailable
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	c.logger.Debugw("Embedding backend call",
		logger.FieldMethod, req.Method,
		logger.FieldPath, req.URL.Path,
		logger.FieldStatus, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &statusError{status: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Detail != "" {
			se.detail = er.Detail
		} else {
			se.detail = strings.TrimSpace(string(raw))
		}
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", req.URL.Path)
	}
	return nil
}

// HTTPEncoder serves one model of a Client. Texts are split into batches
// sent concurrently; results are reassembled in input order.
type HTTPEncoder struct {
	client      *Client
	model       string
	batchSize   int
	maxParallel int

	mu   sync.RWMutex
	dims int
}

// NewHTTPEncoder creates an encoder for model on client
func NewHTTPEncoder(client *Client, model string, batchSize, maxParallel int) *HTTPEncoder {
	if batchSize <= 0 {
		batchSize = 64
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &HTTPEncoder{
		client:      client,
		model:       model,
		batchSize:   batchSize,
		maxParallel: maxParallel,
	}
}

// Initialize checks that the backend has the model loaded
func (e *HTTPEncoder) Initialize(ctx context.Context) error {
	loaded, err := e.client.Models(ctx)
	if err != nil {
		return err
	}
	for _, name := range loaded {
		if name == e.model {
			return nil
		}
	}
	return errors.WithHintf(
		modelUnavailable(nil, "model %s is not loaded by %s", e.model, e.client.baseURL),
		"backend has: %s", strings.Join(loaded, ", "))
}

// Encode embeds texts in batches of batchSize, at most maxParallel in flight
func (e *HTTPEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)

	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch := texts[start:end]
			rows, err := e.client.Embed(gctx, e.model, batch)
			if err != nil {
				return err
			}
			if len(rows) != len(batch) {
				return encodingError(nil, "model %s returned %d vectors for batch %d-%d", e.model, len(rows), start, end)
			}
			copy(out[start:end], rows)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dims, err := checkShape(e.model, out, len(texts))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims != 0 && e.dims != dims {
		return nil, encodingError(nil, "model %s changed dimension from %d to %d", e.model, e.dims, dims)
	}
	e.dims = dims
	return out, nil
}

func (e *HTTPEncoder) ModelInfo() ModelInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ModelInfo{Name: e.model, Backend: am.BackendHTTP, Dimensions: e.dims}
}

// Close is a no-op; the shared Client owns no resources that need release
func (e *HTTPEncoder) Close() error { return nil }
