// Package am holds semcluster's configuration: schema, defaults, the file
// cascade, validation, and hot reload.
package am

// Config represents the semcluster configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings" toml:"embeddings" json:"embeddings" yaml:"embeddings"`
	Clustering ClusteringConfig `mapstructure:"clustering" toml:"clustering" json:"clustering" yaml:"clustering"`
	Metrics    MetricsConfig    `mapstructure:"metrics" toml:"metrics" json:"metrics" yaml:"metrics"`
	Log        LogConfig        `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host                  string   `mapstructure:"host" toml:"host" json:"host" yaml:"host"`
	Port                  int      `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds" toml:"request_timeout_seconds" json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	MaxBodyBytes          int64    `mapstructure:"max_body_bytes" toml:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes"`
	AllowedOrigins        []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// Embedding backends
const (
	BackendHTTP    = "http"    // FlagEmbedding-compatible service
	BackendHashing = "hashing" // deterministic local feature hashing
)

// EmbeddingsConfig configures the vector source
type EmbeddingsConfig struct {
	Backend           string   `mapstructure:"backend" toml:"backend" json:"backend" yaml:"backend"`
	BaseURL           string   `mapstructure:"base_url" toml:"base_url" json:"base_url" yaml:"base_url"`
	Models            []string `mapstructure:"models" toml:"models" json:"models" yaml:"models"`
	DefaultModel      string   `mapstructure:"default_model" toml:"default_model" json:"default_model" yaml:"default_model"`
	TimeoutSeconds    int      `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
	BatchSize         int      `mapstructure:"batch_size" toml:"batch_size" json:"batch_size" yaml:"batch_size"`
	MaxParallel       int      `mapstructure:"max_parallel" toml:"max_parallel" json:"max_parallel" yaml:"max_parallel"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second" toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"` // 0 = unlimited
	Normalize         bool     `mapstructure:"normalize" toml:"normalize" json:"normalize" yaml:"normalize"`
	CachePath         string   `mapstructure:"cache_path" toml:"cache_path" json:"cache_path" yaml:"cache_path"` // empty = no cache
	HashingDimensions int      `mapstructure:"hashing_dimensions" toml:"hashing_dimensions" json:"hashing_dimensions" yaml:"hashing_dimensions"`
}

// ClusteringConfig holds request defaults and resource bounds for clustering
type ClusteringConfig struct {
	MinClusterSize          int     `mapstructure:"min_cluster_size" toml:"min_cluster_size" json:"min_cluster_size" yaml:"min_cluster_size"`
	MinSamples              int     `mapstructure:"min_samples" toml:"min_samples" json:"min_samples" yaml:"min_samples"` // 0 = same as min_cluster_size
	Metric                  string  `mapstructure:"metric" toml:"metric" json:"metric" yaml:"metric"`
	ClusterSelectionEpsilon float64 `mapstructure:"cluster_selection_epsilon" toml:"cluster_selection_epsilon" json:"cluster_selection_epsilon" yaml:"cluster_selection_epsilon"`
	Alpha                   float64 `mapstructure:"alpha" toml:"alpha" json:"alpha" yaml:"alpha"`
	MaxItems                int     `mapstructure:"max_items" toml:"max_items" json:"max_items" yaml:"max_items"`
	MaxConcurrent           int     `mapstructure:"max_concurrent" toml:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent"` // 0 = NumCPU
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level" toml:"level" json:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
}
