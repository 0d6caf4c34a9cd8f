package model

import (
	"fmt"
	"math"
)

// #region gru
// gruStep keeps what the backward pass needs from one recurrent step.
type gruStep struct {
	x     []float64
	hPrev []float64
	r     []float64
	z     []float64
	n     []float64
	ghn   []float64 // hidden-side candidate pre-activation, before the reset gate
}

// aggregate runs the gated recurrent cell over seq in order, starting from a
// zero hidden state, and returns the state after the last element.
func (m *Model) aggregate(seq [][]float64, steps *[]gruStep) ([]float64, error) {
	if len(seq) == 0 {
		return nil, &LengthError{Got: 0}
	}
	H := m.cfg.Hidden
	gi := make([]float64, 3*H)
	gh := make([]float64, 3*H)
	h := make([]float64, H)

	for t, x := range seq {
		if len(x) != H {
			return nil, &DimensionError{Got: len(x), Want: H, Detail: fmt.Sprintf("embedding %d width", t)}
		}
		m.params.GRUInput.apply(x, gi)
		m.params.GRUHidden.apply(h, gh)

		r := make([]float64, H)
		z := make([]float64, H)
		n := make([]float64, H)
		next := make([]float64, H)
		for k := 0; k < H; k++ {
			r[k] = sigmoid(gi[k] + gh[k])
			z[k] = sigmoid(gi[H+k] + gh[H+k])
			n[k] = math.Tanh(gi[2*H+k] + r[k]*gh[2*H+k])
			next[k] = (1-z[k])*n[k] + z[k]*h[k]
		}
		if steps != nil {
			*steps = append(*steps, gruStep{
				x:     x,
				hPrev: h,
				r:     r,
				z:     z,
				n:     n,
				ghn:   append([]float64(nil), gh[2*H:]...),
			})
		}
		h = next
	}
	return h, nil
}

// aggregateBackward runs backpropagation through time from the gradient of
// the final state and returns the gradient for every input embedding.
func (m *Model) aggregateBackward(steps []gruStep, dh []float64, g *Params) [][]float64 {
	H := m.cfg.Hidden
	dxs := make([][]float64, len(steps))
	cur := append([]float64(nil), dh...)
	dgi := make([]float64, 3*H)
	dgh := make([]float64, 3*H)

	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		prev := make([]float64, H)
		for k := 0; k < H; k++ {
			r, z, n := s.r[k], s.z[k], s.n[k]
			dn := cur[k] * (1 - z)
			dz := cur[k] * (s.hPrev[k] - n)
			prev[k] = cur[k] * z

			dan := dn * (1 - n*n)
			dgi[2*H+k] = dan
			dgh[2*H+k] = dan * r

			dar := dan * s.ghn[k] * r * (1 - r)
			daz := dz * z * (1 - z)
			dgi[k], dgh[k] = dar, dar
			dgi[H+k], dgh[H+k] = daz, daz
		}
		dx := make([]float64, H)
		m.params.GRUInput.accumulate(&g.GRUInput, s.x, dgi, dx)
		m.params.GRUHidden.accumulate(&g.GRUHidden, s.hPrev, dgh, prev)
		dxs[t] = dx
		cur = prev
	}
	return dxs
}

// #endregion gru
