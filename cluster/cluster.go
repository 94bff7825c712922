// Package cluster implements average-linkage hierarchical clustering on
// correlation distance, the arrangement used for expression heatmaps.
package cluster

import (
	"fmt"
	"math"

	"github.com/theodesp/unionfind"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Merge joins two nodes. Nodes below N are leaves; node N+i is the cluster
// created by Merges[i].
type Merge struct {
	Left   int
	Right  int
	Height float64
	Size   int
}

// Tree is a complete agglomeration of N leaves.
type Tree struct {
	N      int
	Merges []Merge

	// Order lists the leaves left to right as drawn in a dendrogram.
	Order []int
}

// CorrelationDistance is 1 - Pearson correlation. Vectors with no variance
// have undefined correlation and are treated as uncorrelated.
func CorrelationDistance(a, b []float64) float64 {
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 1
	}
	return 1 - r
}

// DistanceMatrix computes pairwise correlation distances between rows.
func DistanceMatrix(rows [][]float64) *mat.SymDense {
	n := len(rows)
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, CorrelationDistance(rows[i], rows[j]))
		}
	}
	return d
}

// Rows clusters the rows of m.
func Rows(m mat.Matrix) (*Tree, error) {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		mat.Row(rows[i], i, m)
	}
	return Hierarchical(DistanceMatrix(rows))
}

// Columns clusters the columns of m.
func Columns(m mat.Matrix) (*Tree, error) {
	return Rows(m.T())
}

// Hierarchical performs UPGMA: at each step the two closest clusters merge and
// the distance from the new cluster to any other is the size-weighted mean of
// its parts' distances. Ties resolve to the lowest node indices.
func Hierarchical(dist mat.Symmetric) (*Tree, error) {
	n := dist.Symmetric()
	if n < 1 {
		return nil, fmt.Errorf("cannot cluster zero items")
	}

	// Working distances indexed by node ID.
	total := 2*n - 1
	d := make([][]float64, total)
	for i := range d {
		d[i] = make([]float64, total)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d[i][j] = dist.At(i, j)
		}
	}

	size := make([]int, total)
	active := make([]bool, total)
	for i := 0; i < n; i++ {
		size[i] = 1
		active[i] = true
	}

	tree := &Tree{N: n, Merges: make([]Merge, 0, n-1)}
	for step := 0; step < n-1; step++ {
		a, b := -1, -1
		best := math.Inf(1)
		for i := 0; i < n+step; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n+step; j++ {
				if !active[j] {
					continue
				}
				if d[i][j] < best || a < 0 {
					a, b, best = i, j, d[i][j]
				}
			}
		}

		node := n + step
		size[node] = size[a] + size[b]
		active[a], active[b] = false, false
		active[node] = true

		for k := 0; k < node; k++ {
			if !active[k] {
				continue
			}
			v := (float64(size[a])*d[a][k] + float64(size[b])*d[b][k]) / float64(size[node])
			d[node][k], d[k][node] = v, v
		}

		tree.Merges = append(tree.Merges, Merge{Left: a, Right: b, Height: best, Size: size[node]})
	}

	tree.Order = tree.leafOrder()

	return tree, nil
}

func (t *Tree) leafOrder() []int {
	out := make([]int, 0, t.N)
	if t.N == 1 {
		return append(out, 0)
	}

	var walk func(node int)
	walk = func(node int) {
		if node < t.N {
			out = append(out, node)
			return
		}
		m := t.Merges[node-t.N]
		walk(m.Left)
		walk(m.Right)
	}
	walk(t.N + len(t.Merges) - 1)

	return out
}

// Cut assigns each leaf to one of k clusters by undoing the top k-1 merges.
// Cluster numbers start at 0 and follow the leaf Order, so the leftmost
// dendrogram branch is cluster 0.
func (t *Tree) Cut(k int) ([]int, error) {
	if k < 1 || k > t.N {
		return nil, fmt.Errorf("cannot cut %d leaves into %d clusters", t.N, k)
	}

	// Any leaf of a node identifies it inside the union-find.
	rep := make([]int, t.N+len(t.Merges))
	for i := 0; i < t.N; i++ {
		rep[i] = i
	}

	uf := unionfind.NewThreadSafeUnionFind(t.N)
	for i, m := range t.Merges {
		rep[t.N+i] = rep[m.Left]
		if i >= t.N-k {
			continue
		}
		uf.Union(rep[m.Left], rep[m.Right])
	}

	labels := make([]int, t.N)
	seen := make(map[int]int)
	for _, leaf := range t.Order {
		root := uf.Root(leaf)
		id, ok := seen[root]
		if !ok {
			id = len(seen)
			seen[root] = id
		}
		labels[leaf] = id
	}

	return labels, nil
}
