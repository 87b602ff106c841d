// Package hdbscan implements density-based hierarchical clustering over dense
// vectors: mutual-reachability distances, a minimum spanning tree, the
// single-linkage hierarchy, the condensed tree, and excess-of-mass cluster
// selection with optional epsilon merging.
//
// Every call is a pure function of its inputs. Equal inputs and parameters
// always produce equal labels.
package hdbscan

import (
	"context"
	"math"

	"github.com/teranos/semcluster/errors"
)

// Noise is the label of points that belong to no cluster
const Noise = -1

// Result holds the output of HDBSCAN clustering.
type Result struct {
	Labels        []int       `json:"labels"`
	Probabilities []float64   `json:"probabilities"`
	NClusters     int         `json:"n_clusters"`
	NPoints       int         `json:"n_points"`
	NNoise        int         `json:"n_noise"`
	Centroids     [][]float32 `json:"centroids"` // one centroid per cluster, indexed by label

	// Tree is the condensed tree the labels were extracted from
	Tree *CondensedTree `json:"-"`
}

// Cluster runs the full pipeline over vectors. Parameter violations are
// ErrInvalidInput; non-finite or ragged vectors and undefined distances are
// ErrComputationFailure naming the failing stage.
func Cluster(ctx context.Context, vectors [][]float32, params Params) (*Result, error) {
	n := len(vectors)

	metric, err := ParseMetric(string(params.Metric))
	if err != nil {
		return nil, err
	}
	params.Metric = metric
	if params.Alpha == 0 {
		params.Alpha = 1
	}
	if err := params.Validate(n); err != nil {
		return nil, err
	}

	if err := ValidateVectors(vectors); err != nil {
		return nil, err
	}

	dm, err := pairwiseDistances(ctx, vectors, params.Metric)
	if err != nil {
		return nil, err
	}

	core, err := coreDistances(ctx, dm, params.EffectiveMinSamples(n))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "clustering cancelled before spanning tree")
	}

	mr := &mutualReachability{dm: dm, core: core, alpha: params.Alpha}
	edges := primMST(n, mr.at)
	for _, e := range edges {
		if math.IsNaN(e.weight) || math.IsInf(e.weight, 0) {
			return nil, errors.NewComputationError("minimum spanning tree", "edge %d-%d has non-finite weight", e.a, e.b)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "clustering cancelled before hierarchy")
	}

	rows := singleLinkage(n, edges)
	tree := condenseTree(rows, n, params.MinClusterSize)

	idx := newTreeIndex(tree)
	selected := idx.selectEOM()
	if params.ClusterSelectionEpsilon > 0 {
		selected = idx.applyEpsilon(selected, params.ClusterSelectionEpsilon)
	}
	labels, clusterIDs := idx.labelPoints(selected, params.ClusterSelectionEpsilon)

	result := &Result{
		Labels:        labels,
		Probabilities: idx.probabilities(labels, clusterIDs),
		NClusters:     len(clusterIDs),
		NPoints:       n,
		Tree:          tree,
	}
	for _, l := range labels {
		if l == Noise {
			result.NNoise++
		}
	}
	result.Centroids = centroids(vectors, labels, result.NClusters)

	if err := checkPartition(result); err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateVectors rejects empty, ragged, or non-finite input.
func ValidateVectors(vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.NewComputationError("validate vectors", "no vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return errors.NewComputationError("validate vectors", "vector 0 is empty")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return errors.NewComputationError("validate vectors", "vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		for j, x := range v {
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return errors.NewComputationError("validate vectors", "vector %d has non-finite value at position %d", i, j)
			}
		}
	}
	return nil
}

func centroids(vectors [][]float32, labels []int, k int) [][]float32 {
	if k == 0 {
		return nil
	}
	dim := len(vectors[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for p, l := range labels {
		if l == Noise {
			continue
		}
		counts[l]++
		for d, x := range vectors[p] {
			sums[l][d] += float64(x)
		}
	}

	out := make([][]float32, k)
	for l := range out {
		out[l] = make([]float32, dim)
		if counts[l] == 0 {
			continue
		}
		for d := range out[l] {
			out[l][d] = float32(sums[l][d] / float64(counts[l]))
		}
	}
	return out
}

// checkPartition asserts every point got exactly one valid label
func checkPartition(r *Result) error {
	if len(r.Labels) != r.NPoints {
		return errors.AssertionFailedf("labelled %d of %d points", len(r.Labels), r.NPoints)
	}
	seen := make([]bool, r.NClusters)
	for p, l := range r.Labels {
		if l < Noise || l >= r.NClusters {
			return errors.AssertionFailedf("point %d has label %d outside [-1, %d)", p, l, r.NClusters)
		}
		if l != Noise {
			seen[l] = true
		}
	}
	for l, ok := range seen {
		if !ok {
			return errors.AssertionFailedf("cluster %d has no members", l)
		}
	}
	return nil
}
