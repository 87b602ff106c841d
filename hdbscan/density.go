package hdbscan

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// coreDistances returns, for each point, the distance to its k-th nearest
// neighbour counting the point itself, so k=1 yields zeros.
func coreDistances(ctx context.Context, dm *distanceMatrix, k int) ([]float64, error) {
	n := dm.n
	core := make([]float64, n)
	if k <= 1 {
		return core, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := make([]float64, n)
			for j := 0; j < n; j++ {
				row[j] = dm.at(i, j)
			}
			sort.Float64s(row)
			core[i] = row[k-1]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return core, nil
}

// mutualReachability is max(core(i), core(j), d(i,j)/alpha)
type mutualReachability struct {
	dm    *distanceMatrix
	core  []float64
	alpha float64
}

func (mr *mutualReachability) at(i, j int) float64 {
	d := mr.dm.at(i, j)
	if mr.alpha != 1 {
		d /= mr.alpha
	}
	return math.Max(d, math.Max(mr.core[i], mr.core[j]))
}
