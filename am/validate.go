package am

import (
	"net/url"

	"github.com/teranos/semcluster/errors"
)

var knownMetrics = map[string]bool{
	"euclidean": true,
	"manhattan": true,
	"chebyshev": true,
	"cosine":    true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in 1..65535 (0 for default), got %d", c.Server.Port)
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return errors.Newf("server.request_timeout_seconds must be >= 0, got %d", c.Server.RequestTimeoutSeconds)
	}
	if c.Server.MaxBodyBytes < 0 {
		return errors.Newf("server.max_body_bytes must be >= 0, got %d", c.Server.MaxBodyBytes)
	}

	switch c.Embeddings.Backend {
	case BackendHTTP:
		if c.Embeddings.BaseURL == "" {
			return errors.New("embeddings.base_url cannot be empty for the http backend")
		}
		u, err := url.Parse(c.Embeddings.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Newf("embeddings.base_url must be an http(s) URL, got %q", c.Embeddings.BaseURL)
		}
	case BackendHashing:
		if c.Embeddings.HashingDimensions <= 0 {
			return errors.Newf("embeddings.hashing_dimensions must be > 0, got %d", c.Embeddings.HashingDimensions)
		}
	default:
		return errors.Newf("embeddings.backend must be %q or %q, got %q", BackendHTTP, BackendHashing, c.Embeddings.Backend)
	}
	if len(c.ModelNames()) == 0 {
		return errors.New("embeddings.models cannot be empty")
	}
	if c.Embeddings.TimeoutSeconds <= 0 {
		return errors.Newf("embeddings.timeout_seconds must be > 0, got %d", c.Embeddings.TimeoutSeconds)
	}
	if c.Embeddings.BatchSize <= 0 {
		return errors.Newf("embeddings.batch_size must be > 0, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.MaxParallel <= 0 {
		return errors.Newf("embeddings.max_parallel must be > 0, got %d", c.Embeddings.MaxParallel)
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return errors.Newf("embeddings.requests_per_second must be >= 0, got %f", c.Embeddings.RequestsPerSecond)
	}

	if c.Clustering.MinClusterSize < 2 {
		return errors.Newf("clustering.min_cluster_size must be >= 2, got %d", c.Clustering.MinClusterSize)
	}
	if c.Clustering.MinSamples < 0 {
		return errors.Newf("clustering.min_samples must be >= 0 (0 = min_cluster_size), got %d", c.Clustering.MinSamples)
	}
	if !knownMetrics[c.Clustering.Metric] {
		return errors.Newf("clustering.metric must be one of euclidean, manhattan, chebyshev, cosine, got %q", c.Clustering.Metric)
	}
	if c.Clustering.ClusterSelectionEpsilon < 0 {
		return errors.Newf("clustering.cluster_selection_epsilon must be >= 0, got %f", c.Clustering.ClusterSelectionEpsilon)
	}
	if c.Clustering.Alpha <= 0 {
		return errors.Newf("clustering.alpha must be > 0, got %f", c.Clustering.Alpha)
	}
	if c.Clustering.MaxItems < c.Clustering.MinClusterSize {
		return errors.Newf("clustering.max_items (%d) must be >= clustering.min_cluster_size (%d)",
			c.Clustering.MaxItems, c.Clustering.MinClusterSize)
	}
	if c.Clustering.MaxConcurrent < 0 {
		return errors.Newf("clustering.max_concurrent must be >= 0 (0 = NumCPU), got %d", c.Clustering.MaxConcurrent)
	}

	return nil
}
