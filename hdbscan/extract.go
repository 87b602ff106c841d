package hdbscan

import (
	"math"
	"sort"
)

// persistence is death − birth, with zero when nothing persisted. Guards the
// +Inf − +Inf case produced by duplicate points.
func persistence(death, birth float64) float64 {
	if death <= birth {
		return 0
	}
	return death - birth
}

// treeIndex caches the per-cluster views of a condensed tree that selection
// and labelling need. Slices are indexed by cluster id − NumPoints.
type treeIndex struct {
	tree        *CondensedTree
	births      []float64 // lambda at which each cluster appeared, 0 for the root
	deaths      []float64 // largest lambda among each cluster's child edges
	parent      []int     // parent cluster id, -1 for the root
	children    [][]int   // child cluster ids in edge order
	pointParent []int
	pointLambda []float64
}

func newTreeIndex(t *CondensedTree) *treeIndex {
	k := t.NumClusters()
	idx := &treeIndex{
		tree:        t,
		births:      make([]float64, k),
		deaths:      make([]float64, k),
		parent:      make([]int, k),
		children:    make([][]int, k),
		pointParent: make([]int, t.NumPoints),
		pointLambda: make([]float64, t.NumPoints),
	}
	for i := range idx.parent {
		idx.parent[i] = -1
	}
	for i := range idx.pointParent {
		idx.pointParent[i] = t.Root()
	}

	for _, e := range t.Edges {
		p := e.Parent - t.NumPoints
		if e.Lambda > idx.deaths[p] {
			idx.deaths[p] = e.Lambda
		}
		if t.IsCluster(e.Child) {
			c := e.Child - t.NumPoints
			idx.births[c] = e.Lambda
			idx.parent[c] = e.Parent
			idx.children[p] = append(idx.children[p], e.Child)
		} else {
			idx.pointParent[e.Child] = e.Parent
			idx.pointLambda[e.Child] = e.Lambda
		}
	}
	return idx
}

func (idx *treeIndex) slot(id int) int {
	return id - idx.tree.NumPoints
}

// stabilities computes Σ (lambda − birth(parent)) × size over each cluster's child edges
func (idx *treeIndex) stabilities() []float64 {
	stability := make([]float64, idx.tree.NumClusters())
	for _, e := range idx.tree.Edges {
		p := idx.slot(e.Parent)
		stability[p] += persistence(e.Lambda, idx.births[p]) * float64(e.Size)
	}
	return stability
}

// descendants lists every cluster below id, breadth first
func (idx *treeIndex) descendants(id int) []int {
	var out []int
	queue := append([]int(nil), idx.children[idx.slot(id)]...)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		out = append(out, c)
		queue = append(queue, idx.children[idx.slot(c)]...)
	}
	return out
}

// selectEOM runs excess-of-mass selection bottom-up. The root takes part, so
// a single dense mode is reported as one cluster instead of all noise.
func (idx *treeIndex) selectEOM() []bool {
	stability := idx.stabilities()
	selected := make([]bool, len(stability))
	for i := range selected {
		selected[i] = true
	}

	// child ids are larger than parent ids, so a descending walk sees children first
	for s := len(stability) - 1; s >= 0; s-- {
		kids := idx.children[s]
		if len(kids) == 0 {
			continue
		}

		var subtree float64
		for _, c := range kids {
			subtree += stability[idx.slot(c)]
		}

		if subtree > stability[s] {
			selected[s] = false
			stability[s] = subtree
		} else {
			for _, d := range idx.descendants(s + idx.tree.NumPoints) {
				selected[idx.slot(d)] = false
			}
		}
	}
	return selected
}

// applyEpsilon replaces every selected cluster born below distance epsilon
// with its nearest ancestor born above it (the root when none is).
func (idx *treeIndex) applyEpsilon(selected []bool, epsilon float64) []bool {
	root := idx.tree.Root()
	if selected[idx.slot(root)] {
		return selected
	}

	var leaves []int
	for s, ok := range selected {
		if ok {
			leaves = append(leaves, s+idx.tree.NumPoints)
		}
	}
	sort.Ints(leaves)

	out := make([]bool, len(selected))
	processed := make(map[int]bool)
	for _, leaf := range leaves {
		if processed[leaf] {
			continue
		}
		if 1/idx.births[idx.slot(leaf)] >= epsilon {
			out[idx.slot(leaf)] = true
			continue
		}

		target := idx.ancestorAboveEpsilon(leaf, epsilon)
		out[idx.slot(target)] = true
		for _, d := range idx.descendants(target) {
			processed[d] = true
		}
	}

	// a leaf kept on its own may sit under an ancestor chosen later
	for s, ok := range out {
		if !ok {
			continue
		}
		for p := idx.parent[s]; p != -1; p = idx.parent[idx.slot(p)] {
			if out[idx.slot(p)] {
				out[s] = false
				break
			}
		}
	}
	return out
}

func (idx *treeIndex) ancestorAboveEpsilon(leaf int, epsilon float64) int {
	root := idx.tree.Root()
	node := leaf
	for {
		parent := idx.parent[idx.slot(node)]
		if parent == root || parent == -1 {
			return root
		}
		if 1/idx.births[idx.slot(parent)] > epsilon {
			return parent
		}
		node = parent
	}
}

// labelPoints assigns each point the label of its nearest selected ancestor.
// Selected cluster ids map to labels 0..k-1 in ascending id order.
func (idx *treeIndex) labelPoints(selected []bool, epsilon float64) (labels []int, clusterIDs []int) {
	for s, ok := range selected {
		if ok {
			clusterIDs = append(clusterIDs, s+idx.tree.NumPoints)
		}
	}
	labelOf := make(map[int]int, len(clusterIDs))
	for label, id := range clusterIDs {
		labelOf[id] = label
	}

	root := idx.tree.Root()
	// members of a selected root must reach its densest level, or 1/epsilon
	// when that is lower
	rootThreshold := idx.deaths[idx.slot(root)]
	if epsilon > 0 && 1/epsilon < rootThreshold {
		rootThreshold = 1 / epsilon
	}

	labels = make([]int, idx.tree.NumPoints)
	for p := range labels {
		c := idx.pointParent[p]
		for !selected[idx.slot(c)] && c != root {
			c = idx.parent[idx.slot(c)]
		}

		switch {
		case !selected[idx.slot(c)]:
			labels[p] = Noise
		case c == root && idx.pointLambda[p] < rootThreshold:
			labels[p] = Noise
		default:
			labels[p] = labelOf[c]
		}
	}
	return labels, clusterIDs
}

// probabilities scales each member's fall-out lambda by the largest lambda
// in its cluster. Noise gets 0.
func (idx *treeIndex) probabilities(labels []int, clusterIDs []int) []float64 {
	probs := make([]float64, len(labels))
	for p, label := range labels {
		if label == Noise {
			continue
		}
		maxLambda := idx.deaths[idx.slot(clusterIDs[label])]
		lambda := idx.pointLambda[p]
		if maxLambda == 0 || math.IsInf(lambda, 1) {
			probs[p] = 1
			continue
		}
		probs[p] = math.Min(lambda, maxLambda) / maxLambda
	}
	return probs
}
