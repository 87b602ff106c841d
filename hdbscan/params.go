package hdbscan

import (
	"math"
	"strings"

	"github.com/teranos/semcluster/errors"
)

// Metric names a distance function between two vectors
type Metric string

const (
	Euclidean Metric = "euclidean"
	Manhattan Metric = "manhattan"
	Chebyshev Metric = "chebyshev"
	Cosine    Metric = "cosine"
)

// Metrics lists the supported metrics in display order
var Metrics = []Metric{Euclidean, Manhattan, Chebyshev, Cosine}

// ParseMetric resolves a metric name case-insensitively. Empty means Euclidean.
func ParseMetric(name string) (Metric, error) {
	if name == "" {
		return Euclidean, nil
	}
	m := Metric(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Metrics {
		if m == known {
			return m, nil
		}
	}
	return "", errors.WithHint(
		errors.NewInvalidInputError("unknown metric %q", name),
		"use one of euclidean, manhattan, chebyshev, cosine")
}

// Params controls density estimation and cluster selection
type Params struct {
	// MinClusterSize is the smallest group that counts as a cluster (>= 2)
	MinClusterSize int `json:"min_cluster_size" yaml:"min_cluster_size"`

	// MinSamples is the neighbourhood size for core distances.
	// 0 means MinClusterSize; values above N are clamped to N.
	MinSamples int `json:"min_samples,omitempty" yaml:"min_samples,omitempty"`

	Metric Metric `json:"metric" yaml:"metric"`

	// ClusterSelectionEpsilon merges selected clusters born below this distance.
	// 0 disables merging.
	ClusterSelectionEpsilon float64 `json:"cluster_selection_epsilon" yaml:"cluster_selection_epsilon"`

	// Alpha divides raw distances inside mutual reachability (> 0)
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// DefaultParams returns min_cluster_size=5, euclidean, epsilon 0, alpha 1
func DefaultParams() Params {
	return Params{
		MinClusterSize: 5,
		Metric:         Euclidean,
		Alpha:          1.0,
	}
}

// EffectiveMinSamples returns the neighbourhood size used for n points
func (p Params) EffectiveMinSamples(n int) int {
	k := p.MinSamples
	if k <= 0 {
		k = p.MinClusterSize
	}
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Validate checks parameter ranges against an input of n points.
// Violations are ErrInvalidInput.
func (p Params) Validate(n int) error {
	if p.MinClusterSize < 2 {
		return errors.NewInvalidInputError("min_cluster_size must be >= 2, got %d", p.MinClusterSize)
	}
	if n < p.MinClusterSize {
		return errors.WithHint(
			errors.NewInvalidInputError("got %d items, need at least min_cluster_size=%d", n, p.MinClusterSize),
			"lower min_cluster_size or send more texts")
	}
	if p.MinSamples < 0 {
		return errors.NewInvalidInputError("min_samples must be >= 1 when set, got %d", p.MinSamples)
	}
	if _, err := ParseMetric(string(p.Metric)); err != nil {
		return err
	}
	if p.ClusterSelectionEpsilon < 0 || math.IsNaN(p.ClusterSelectionEpsilon) || math.IsInf(p.ClusterSelectionEpsilon, 0) {
		return errors.NewInvalidInputError("cluster_selection_epsilon must be a finite value >= 0, got %v", p.ClusterSelectionEpsilon)
	}
	if !(p.Alpha > 0) || math.IsInf(p.Alpha, 0) {
		return errors.NewInvalidInputError("alpha must be a finite value > 0, got %v", p.Alpha)
	}
	return nil
}
