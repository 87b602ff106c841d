package am

import (
	"fmt"
	"runtime"

	"github.com/spf13/viper"
)

// Server port constants
const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8000
)

// DefaultDirPermissions is used for ~/.semcluster
const DefaultDirPermissions = 0750

// DefaultModel is the model loaded when none is configured
const DefaultModel = "BAAI/bge-small-en-v1.5"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.max_body_bytes", 8<<20)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"http://127.0.0.1",
	})

	v.SetDefault("embeddings.backend", BackendHTTP)
	v.SetDefault("embeddings.base_url", "http://localhost:8001")
	v.SetDefault("embeddings.models", []string{DefaultModel})
	v.SetDefault("embeddings.default_model", DefaultModel)
	v.SetDefault("embeddings.timeout_seconds", 60)
	v.SetDefault("embeddings.batch_size", 64)
	v.SetDefault("embeddings.max_parallel", 4)
	v.SetDefault("embeddings.requests_per_second", 0)
	v.SetDefault("embeddings.normalize", true)
	v.SetDefault("embeddings.cache_path", "")
	v.SetDefault("embeddings.hashing_dimensions", 256)

	v.SetDefault("clustering.min_cluster_size", 5)
	v.SetDefault("clustering.min_samples", 0)
	v.SetDefault("clustering.metric", "euclidean")
	v.SetDefault("clustering.cluster_selection_epsilon", 0.0)
	v.SetDefault("clustering.alpha", 1.0)
	v.SetDefault("clustering.max_items", 5000) // distance matrix is N²
	v.SetDefault("clustering.max_concurrent", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// BindEnvVars binds the environment variables of the original embedding
// service (API_HOST, API_PORT) next to the SEMCLUSTER_* namespace.
func BindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.host", "SEMCLUSTER_SERVER_HOST", "API_HOST")
	_ = v.BindEnv("server.port", "SEMCLUSTER_SERVER_PORT", "API_PORT")
	_ = v.BindEnv("embeddings.base_url", "SEMCLUSTER_EMBEDDINGS_BASE_URL", "EMBEDDING_API_URL")
}

// Addr returns host:port for the HTTP listener
func (c *Config) Addr() string {
	host := c.Server.Host
	if host == "" {
		host = DefaultServerHost
	}
	port := c.Server.Port
	if port == 0 {
		port = DefaultServerPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// MaxConcurrentClusterings returns the clustering concurrency bound, NumCPU when unset
func (c *Config) MaxConcurrentClusterings() int {
	if c.Clustering.MaxConcurrent <= 0 {
		return runtime.NumCPU()
	}
	return c.Clustering.MaxConcurrent
}

// ModelNames returns the configured models with the default model first and
// without duplicates.
func (c *Config) ModelNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	add(c.Embeddings.DefaultModel)
	for _, m := range c.Embeddings.Models {
		add(m)
	}
	return names
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: %s, Embeddings: {Backend: %s, Models: %v}, Clustering: {MinClusterSize: %d, Metric: %s}}",
		c.Addr(), c.Embeddings.Backend, c.ModelNames(), c.Clustering.MinClusterSize, c.Clustering.Metric)
}
