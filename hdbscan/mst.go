package hdbscan

import (
	"math"
	"sort"
)

type mstEdge struct {
	a, b   int
	weight float64
}

// primMST builds a minimum spanning tree over the dense graph defined by
// weight. O(n²) time, O(n) memory. Ties go to the lowest vertex index, both
// when choosing the next vertex and when choosing which tree vertex it attaches to.
func primMST(n int, weight func(i, j int) float64) []mstEdge {
	if n < 2 {
		return nil
	}

	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
		from[i] = -1
	}

	edges := make([]mstEdge, 0, n-1)
	current := 0
	inTree[0] = true

	for len(edges) < n-1 {
		next := -1
		nextWeight := math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if w := weight(current, j); w < best[j] {
				best[j] = w
				from[j] = current
			}
			if next == -1 || best[j] < nextWeight {
				next = j
				nextWeight = best[j]
			}
		}

		edges = append(edges, mstEdge{a: from[next], b: next, weight: nextWeight})
		inTree[next] = true
		current = next
	}

	return edges
}

// linkageRow is one merge of the single-linkage hierarchy. Node ids below n
// are points; merge i creates node n+i.
type linkageRow struct {
	Left, Right int
	Distance    float64
	Size        int
}

type unionFind struct {
	parent []int
	size   []int
	next   int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, 2*n-1),
		size:   make([]int, 2*n-1),
		next:   n,
	}
	for i := range uf.parent {
		uf.parent[i] = -1
		if i < n {
			uf.size[i] = 1
		}
	}
	return uf
}

func (uf *unionFind) union(a, b int) int {
	id := uf.next
	uf.parent[a] = id
	uf.parent[b] = id
	uf.size[id] = uf.size[a] + uf.size[b]
	uf.next++
	return id
}

func (uf *unionFind) find(x int) int {
	root := x
	for uf.parent[root] != -1 {
		root = uf.parent[root]
	}
	for x != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

// singleLinkage sorts MST edges by weight (stable, so equal weights keep
// discovery order) and merges components bottom-up.
func singleLinkage(n int, edges []mstEdge) []linkageRow {
	sorted := make([]mstEdge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].weight < sorted[j].weight
	})

	uf := newUnionFind(n)
	rows := make([]linkageRow, 0, len(sorted))
	for _, e := range sorted {
		ra, rb := uf.find(e.a), uf.find(e.b)
		rows = append(rows, linkageRow{
			Left:     ra,
			Right:    rb,
			Distance: e.weight,
			Size:     uf.size[ra] + uf.size[rb],
		})
		uf.union(ra, rb)
	}
	return rows
}
