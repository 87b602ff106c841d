package cluster

import (
	"github.com/teranos/semcluster/aggregate"
	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/hdbscan"
	"github.com/teranos/semcluster/internal/util"
)

// Options overrides the configured clustering defaults for one request.
// Nil fields and an empty Metric keep the default.
type Options struct {
	MinClusterSize          *int     `json:"min_cluster_size,omitempty" yaml:"min_cluster_size,omitempty"`
	MinSamples              *int     `json:"min_samples,omitempty" yaml:"min_samples,omitempty"`
	Metric                  string   `json:"metric,omitempty" yaml:"metric,omitempty"`
	ClusterSelectionEpsilon *float64 `json:"cluster_selection_epsilon,omitempty" yaml:"cluster_selection_epsilon,omitempty"`
	Alpha                   *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
}

// Apply layers o over defaults. The metric name is resolved here so an
// unknown one fails as invalid input before any encoding.
func (o Options) Apply(defaults hdbscan.Params) (hdbscan.Params, error) {
	p := defaults
	p.MinClusterSize = util.Deref(o.MinClusterSize, p.MinClusterSize)
	p.MinSamples = util.Deref(o.MinSamples, p.MinSamples)
	p.ClusterSelectionEpsilon = util.Deref(o.ClusterSelectionEpsilon, p.ClusterSelectionEpsilon)
	p.Alpha = util.Deref(o.Alpha, p.Alpha)
	if o.Metric != "" {
		p.Metric = hdbscan.Metric(o.Metric)
	}

	metric, err := hdbscan.ParseMetric(string(p.Metric))
	if err != nil {
		return hdbscan.Params{}, err
	}
	p.Metric = metric
	return p, nil
}

// Request asks for texts to be embedded with Model and clustered
type Request struct {
	Texts   []string `json:"texts" yaml:"texts"`
	Weights []int64  `json:"weights,omitempty" yaml:"weights,omitempty"` // nil means all 1
	Model   string   `json:"model,omitempty" yaml:"model,omitempty"`     // empty means the default model

	Options `yaml:",inline"`
}

// VectorsRequest clusters pre-computed vectors, skipping the vector source
type VectorsRequest struct {
	Texts   []string    `json:"texts" yaml:"texts"`
	Vectors [][]float32 `json:"vectors" yaml:"vectors"`
	Weights []int64     `json:"weights,omitempty" yaml:"weights,omitempty"`

	Options `yaml:",inline"`
}

// Timings reports wall time per stage in milliseconds
type Timings struct {
	EncodeMS    float64 `json:"encode_ms" yaml:"encode_ms"`
	ClusterMS   float64 `json:"cluster_ms" yaml:"cluster_ms"`
	AggregateMS float64 `json:"aggregate_ms" yaml:"aggregate_ms"`
	TotalMS     float64 `json:"total_ms" yaml:"total_ms"`
}

// Response is the ranked summary plus what produced it
type Response struct {
	aggregate.Result `yaml:",inline"`

	Model      string         `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int            `json:"dimensions" yaml:"dimensions"`
	Params     hdbscan.Params `json:"params" yaml:"params"`
	Timings    Timings        `json:"timings" yaml:"timings"`
}

// ParamsFromConfig converts the clustering section of the config into
// default parameters
func ParamsFromConfig(cfg am.ClusteringConfig) hdbscan.Params {
	return hdbscan.Params{
		MinClusterSize:          cfg.MinClusterSize,
		MinSamples:              cfg.MinSamples,
		Metric:                  hdbscan.Metric(cfg.Metric),
		ClusterSelectionEpsilon: cfg.ClusterSelectionEpsilon,
		Alpha:                   cfg.Alpha,
	}
}
