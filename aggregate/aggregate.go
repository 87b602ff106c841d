// Package aggregate turns per-item cluster labels into the ranked, weighted
// summary returned to callers.
package aggregate

import (
	"sort"

	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/hdbscan"
)

// Member is one item inside a cluster group
type Member struct {
	Index       int     `json:"index" yaml:"index"`
	Text        string  `json:"text" yaml:"text"`
	Weight      int64   `json:"weight" yaml:"weight"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// Group summarises the items sharing one cluster label
type Group struct {
	ClusterID   int      `json:"cluster_id" yaml:"cluster_id"`
	Size        int      `json:"size" yaml:"size"`
	Items       []Member `json:"items" yaml:"items"`
	TotalWeight int64    `json:"total_weight" yaml:"total_weight"`
	MaxWeight   int64    `json:"max_weight" yaml:"max_weight"`
	AvgWeight   float64  `json:"avg_weight" yaml:"avg_weight"`
}

// Texts returns member texts in input order
func (g *Group) Texts() []string {
	out := make([]string, len(g.Items))
	for i, m := range g.Items {
		out[i] = m.Text
	}
	return out
}

// firstIndex is the smallest original index in the group
func (g *Group) firstIndex() int {
	return g.Items[0].Index
}

// NoiseBucket holds unclustered items as parallel lists in input order
type NoiseBucket struct {
	Texts   []string `json:"texts" yaml:"texts"`
	Indices []int    `json:"indices" yaml:"indices"`
	Weights []int64  `json:"weights" yaml:"weights"`
}

// Result is the ranked summary of one clustering request
type Result struct {
	Clusters       []Group     `json:"clusters" yaml:"clusters"`
	Noise          NoiseBucket `json:"noise" yaml:"noise"`
	TotalClusters  int         `json:"total_clusters" yaml:"total_clusters"`
	ClusteredCount int         `json:"clustered_count" yaml:"clustered_count"`
	NoiseCount     int         `json:"noise_count" yaml:"noise_count"`
	TotalItems     int         `json:"total_items" yaml:"total_items"`
	TotalWeight    int64       `json:"total_weight" yaml:"total_weight"`
}

// Input is the per-item data the aggregator needs, positionally aligned
type Input struct {
	Texts         []string
	Weights       []int64   // nil means every weight is 1
	Labels        []int     // hdbscan.Noise for unclustered items
	Probabilities []float64 // optional
}

// Summarize groups items by label and ranks groups by total weight, then
// average weight, then smallest member index, all deterministic.
func Summarize(in Input) (*Result, error) {
	n := len(in.Texts)
	if len(in.Labels) != n {
		return nil, errors.AssertionFailedf("got %d labels for %d texts", len(in.Labels), n)
	}
	if in.Weights != nil && len(in.Weights) != n {
		return nil, errors.AssertionFailedf("got %d weights for %d texts", len(in.Weights), n)
	}
	if in.Probabilities != nil && len(in.Probabilities) != n {
		return nil, errors.AssertionFailedf("got %d probabilities for %d texts", len(in.Probabilities), n)
	}

	result := &Result{
		Clusters:   []Group{},
		Noise:      NoiseBucket{Texts: []string{}, Indices: []int{}, Weights: []int64{}},
		TotalItems: n,
	}

	byLabel := make(map[int]int) // label -> position in result.Clusters
	for i, text := range in.Texts {
		weight := int64(1)
		if in.Weights != nil {
			weight = in.Weights[i]
		}
		if weight < 0 {
			return nil, errors.AssertionFailedf("item %d has negative weight %d", i, weight)
		}
		result.TotalWeight += weight

		label := in.Labels[i]
		if label == hdbscan.Noise {
			result.Noise.Texts = append(result.Noise.Texts, text)
			result.Noise.Indices = append(result.Noise.Indices, i)
			result.Noise.Weights = append(result.Noise.Weights, weight)
			continue
		}
		if label < 0 {
			return nil, errors.AssertionFailedf("item %d has invalid label %d", i, label)
		}

		pos, ok := byLabel[label]
		if !ok {
			pos = len(result.Clusters)
			byLabel[label] = pos
			result.Clusters = append(result.Clusters, Group{ClusterID: label})
		}

		member := Member{Index: i, Text: text, Weight: weight}
		if in.Probabilities != nil {
			member.Probability = in.Probabilities[i]
		}

		g := &result.Clusters[pos]
		g.Items = append(g.Items, member)
		g.Size++
		g.TotalWeight += weight
		if g.Size == 1 || weight > g.MaxWeight {
			g.MaxWeight = weight
		}
	}

	for i := range result.Clusters {
		g := &result.Clusters[i]
		g.AvgWeight = float64(g.TotalWeight) / float64(g.Size)
	}

	Rank(result.Clusters)

	result.TotalClusters = len(result.Clusters)
	result.NoiseCount = len(result.Noise.Indices)
	result.ClusteredCount = n - result.NoiseCount

	clustered := 0
	for _, g := range result.Clusters {
		clustered += g.Size
	}
	if clustered != result.ClusteredCount {
		return nil, errors.AssertionFailedf("clustered %d + noise %d != %d items", clustered, result.NoiseCount, n)
	}

	return result, nil
}

// Rank sorts groups by total weight desc, average weight desc, then smallest
// member index asc
func Rank(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := &groups[i], &groups[j]
		if a.TotalWeight != b.TotalWeight {
			return a.TotalWeight > b.TotalWeight
		}
		if a.AvgWeight != b.AvgWeight {
			return a.AvgWeight > b.AvgWeight
		}
		return a.firstIndex() < b.firstIndex()
	})
}
