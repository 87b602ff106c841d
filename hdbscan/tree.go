package hdbscan

import "math"

// TreeEdge is one record of the condensed tree. Child ids below NumPoints are
// points falling out of Parent at Lambda; larger ids are clusters born at Lambda.
type TreeEdge struct {
	Parent int     `json:"parent"`
	Child  int     `json:"child"`
	Lambda float64 `json:"lambda"`
	Size   int     `json:"size"`
}

// CondensedTree is an arena of edges. Cluster ids are contiguous, starting at
// NumPoints for the root, and every child cluster has a larger id than its parent.
type CondensedTree struct {
	NumPoints int
	Edges     []TreeEdge
	nextLabel int
}

// Root returns the id of the root cluster
func (t *CondensedTree) Root() int {
	return t.NumPoints
}

// NumClusters returns how many cluster nodes the tree holds, root included
func (t *CondensedTree) NumClusters() int {
	return t.nextLabel - t.NumPoints
}

// IsCluster reports whether id names a cluster node rather than a point
func (t *CondensedTree) IsCluster(id int) bool {
	return id >= t.NumPoints && id < t.nextLabel
}

func lambdaOf(distance float64) float64 {
	if distance > 0 {
		return 1 / distance
	}
	return math.Inf(1)
}

// bfsFromHierarchy lists start and every node below it in the single-linkage
// hierarchy, breadth first
func bfsFromHierarchy(rows []linkageRow, n, start int) []int {
	out := []int{start}
	for i := 0; i < len(out); i++ {
		node := out[i]
		if node >= n {
			row := rows[node-n]
			out = append(out, row.Left, row.Right)
		}
	}
	return out
}

// condenseTree walks the hierarchy from the root and keeps only splits where
// both sides have at least minClusterSize points. The smaller side of any
// other split falls out of the parent cluster point by point.
func condenseTree(rows []linkageRow, n, minClusterSize int) *CondensedTree {
	tree := &CondensedTree{NumPoints: n, nextLabel: n + 1}
	if n < 2 || len(rows) == 0 {
		return tree
	}

	root := 2 * (n - 1)
	relabel := make([]int, root+1)
	ignore := make([]bool, root+1)
	relabel[root] = n

	sizeOf := func(node int) int {
		if node < n {
			return 1
		}
		return rows[node-n].Size
	}

	fallOut := func(parentLabel, subtree int, lambda float64) {
		for _, sub := range bfsFromHierarchy(rows, n, subtree) {
			if sub < n {
				tree.Edges = append(tree.Edges, TreeEdge{Parent: parentLabel, Child: sub, Lambda: lambda, Size: 1})
			}
			ignore[sub] = true
		}
	}

	for _, node := range bfsFromHierarchy(rows, n, root) {
		if node < n || ignore[node] {
			continue
		}

		row := rows[node-n]
		left, right := row.Left, row.Right
		lambda := lambdaOf(row.Distance)
		leftCount, rightCount := sizeOf(left), sizeOf(right)
		parentLabel := relabel[node]

		switch {
		case leftCount >= minClusterSize && rightCount >= minClusterSize:
			relabel[left] = tree.nextLabel
			tree.nextLabel++
			tree.Edges = append(tree.Edges, TreeEdge{Parent: parentLabel, Child: relabel[left], Lambda: lambda, Size: leftCount})

			relabel[right] = tree.nextLabel
			tree.nextLabel++
			tree.Edges = append(tree.Edges, TreeEdge{Parent: parentLabel, Child: relabel[right], Lambda: lambda, Size: rightCount})

		case leftCount < minClusterSize && rightCount < minClusterSize:
			fallOut(parentLabel, left, lambda)
			fallOut(parentLabel, right, lambda)

		case leftCount < minClusterSize:
			relabel[right] = parentLabel
			fallOut(parentLabel, left, lambda)

		default:
			relabel[left] = parentLabel
			fallOut(parentLabel, right, lambda)
		}
	}

	return tree
}
