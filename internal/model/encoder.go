package model

import (
	"fmt"
	"math"
)

// #region adjacency
// adjacency is the symmetric-normalized propagation operator
// D^-1/2 (A + I) D^-1/2, where A carries the edge weights and the degree of a
// node is 1 plus the summed weight of its incoming edges.
type adjacency struct {
	self  []float64 // coefficient of each node's own row
	edges []Edge    // Weight holds the normalized coefficient
}

func normalize(s Snapshot) (adjacency, error) {
	n := s.NumNodes()
	if n == 0 {
		return adjacency{}, &ShapeError{Op: "encode", Node: 0, NumNodes: 0, Detail: "graph has no nodes"}
	}

	deg := make([]float64, n)
	for i := range deg {
		deg[i] = 1
	}
	for _, e := range s.Edges {
		if e.Src < 0 || e.Src >= n {
			return adjacency{}, &ShapeError{Op: "encode", Node: e.Src, NumNodes: n, Detail: "edge source out of range"}
		}
		if e.Dst < 0 || e.Dst >= n {
			return adjacency{}, &ShapeError{Op: "encode", Node: e.Dst, NumNodes: n, Detail: "edge target out of range"}
		}
		if e.Weight < 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return adjacency{}, &ShapeError{Op: "encode", Node: e.Src, NumNodes: n,
				Detail: fmt.Sprintf("edge %d->%d has invalid weight %v", e.Src, e.Dst, e.Weight)}
		}
		deg[e.Dst] += e.Weight
	}

	dinv := make([]float64, n)
	for i, d := range deg {
		dinv[i] = 1 / math.Sqrt(d)
	}

	adj := adjacency{self: make([]float64, n), edges: make([]Edge, 0, len(s.Edges))}
	for i := range adj.self {
		adj.self[i] = dinv[i] * dinv[i]
	}
	for _, e := range s.Edges {
		if e.Weight == 0 {
			continue
		}
		adj.edges = append(adj.edges, Edge{Src: e.Src, Dst: e.Dst, Weight: dinv[e.Src] * e.Weight * dinv[e.Dst]})
	}
	return adj, nil
}

// propagate returns Â·x.
func (a adjacency) propagate(x [][]float64) [][]float64 {
	out := matrix(len(x), len(x[0]))
	for i, row := range x {
		c := a.self[i]
		for k, v := range row {
			out[i][k] = c * v
		}
	}
	for _, e := range a.edges {
		src, dst := x[e.Src], out[e.Dst]
		for k, v := range src {
			dst[k] += e.Weight * v
		}
	}
	return out
}

// propagateT returns Âᵀ·dy.
func (a adjacency) propagateT(dy [][]float64) [][]float64 {
	out := matrix(len(dy), len(dy[0]))
	for i, row := range dy {
		c := a.self[i]
		for k, v := range row {
			out[i][k] = c * v
		}
	}
	for _, e := range a.edges {
		src, dst := dy[e.Dst], out[e.Src]
		for k, v := range src {
			dst[k] += e.Weight * v
		}
	}
	return out
}

// #endregion adjacency

// #region encoder
// encoderTrace keeps the intermediate activations of one Encode call.
type encoderTrace struct {
	adj  adjacency
	agg1 [][]float64
	h1   [][]float64
	agg2 [][]float64
	h2   [][]float64
}

func (m *Model) checkSnapshot(s Snapshot) error {
	if s.NumNodes() != m.cfg.NumNodes {
		return &ShapeError{Op: "encode", Node: s.NumNodes(), NumNodes: m.cfg.NumNodes,
			Detail: "snapshot node count differs from configured graph"}
	}
	for i, row := range s.Features {
		if len(row) != m.cfg.InputDim {
			return &DimensionError{Got: len(row), Want: m.cfg.InputDim, Detail: fmt.Sprintf("node %d feature width", i)}
		}
	}
	return nil
}

func (m *Model) encode(s Snapshot) (*encoderTrace, error) {
	if err := m.checkSnapshot(s); err != nil {
		return nil, err
	}
	adj, err := normalize(s)
	if err != nil {
		return nil, err
	}

	tr := &encoderTrace{adj: adj}
	tr.agg1 = adj.propagate(s.Features)
	tr.h1 = convolve(&m.params.Conv1, tr.agg1)
	tr.agg2 = adj.propagate(tr.h1)
	tr.h2 = convolve(&m.params.Conv2, tr.agg2)
	return tr, nil
}

// convolve applies relu(agg·Wᵀ + b) row by row.
func convolve(l *Linear, agg [][]float64) [][]float64 {
	out := matrix(len(agg), l.Out)
	for i, row := range agg {
		l.apply(row, out[i])
		for k, v := range out[i] {
			out[i][k] = relu(v)
		}
	}
	return out
}

// backward accumulates convolution gradients for upstream dh2 into g.
func (m *Model) encodeBackward(tr *encoderTrace, dh2 [][]float64, g *Params) {
	dagg2 := convolveBackward(&m.params.Conv2, &g.Conv2, tr.agg2, tr.h2, dh2, true)
	dh1 := tr.adj.propagateT(dagg2)
	convolveBackward(&m.params.Conv1, &g.Conv1, tr.agg1, tr.h1, dh1, false)
}

func convolveBackward(l, g *Linear, agg, h, dh [][]float64, wantInput bool) [][]float64 {
	var dagg [][]float64
	if wantInput {
		dagg = matrix(len(agg), l.In)
	}
	dz := make([]float64, l.Out)
	for i := range agg {
		nonzero := false
		for k := range dz {
			dz[k] = 0
			if h[i][k] > 0 {
				dz[k] = dh[i][k]
				if dz[k] != 0 {
					nonzero = true
				}
			}
		}
		if !nonzero {
			continue
		}
		var dx []float64
		if wantInput {
			dx = dagg[i]
		}
		l.accumulate(g, agg[i], dz, dx)
	}
	return dagg
}

// #endregion encoder
