package train

import (
	"math"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
)

// #region optimizer
// Optimizer applies one update to p from the accumulated gradient g.
type Optimizer interface {
	Step(p, g *model.Params)
}

// NewOptimizer returns the optimiser named by cfg.Optimizer.
func NewOptimizer(cfg Config) Optimizer {
	if cfg.Optimizer == "sgd" {
		return &SGD{LR: cfg.LearningRate}
	}
	return &Adam{LR: cfg.LearningRate, Beta1: cfg.Beta1, Beta2: cfg.Beta2, Eps: cfg.Eps}
}

// #endregion optimizer

// #region sgd
// SGD is plain gradient descent.
type SGD struct {
	LR float64
}

func (o *SGD) Step(p, g *model.Params) {
	pt, gt := p.Tensors(), g.Tensors()
	for i := range pt {
		for j := range pt[i].Data {
			pt[i].Data[j] -= o.LR * gt[i].Data[j]
		}
	}
}

// #endregion sgd

// #region adam
// Adam keeps first and second moment estimates per scalar and applies bias
// corrected updates.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	m, v [][]float64
	t    int
}

func (o *Adam) ensure(pt []model.Tensor) {
	if o.m != nil {
		return
	}
	o.m = make([][]float64, len(pt))
	o.v = make([][]float64, len(pt))
	for i, t := range pt {
		o.m[i] = make([]float64, len(t.Data))
		o.v[i] = make([]float64, len(t.Data))
	}
}

func (o *Adam) Step(p, g *model.Params) {
	pt, gt := p.Tensors(), g.Tensors()
	o.ensure(pt)
	o.t++
	b1, b2 := o.Beta1, o.Beta2
	b1Corr := 1.0 - math.Pow(b1, float64(o.t))
	b2Corr := 1.0 - math.Pow(b2, float64(o.t))

	for i := range pt {
		mi, vi := o.m[i], o.v[i]
		for j := range pt[i].Data {
			grad := gt[i].Data[j]
			mi[j] = b1*mi[j] + (1-b1)*grad
			vi[j] = b2*vi[j] + (1-b2)*grad*grad
			mhat := mi[j] / b1Corr
			vhat := vi[j] / b2Corr
			pt[i].Data[j] -= o.LR * mhat / (math.Sqrt(vhat) + o.Eps)
		}
	}
}

// #endregion adam

// #region clip
// ClipGradNorm rescales g so its global L2 norm is at most max and returns
// the norm before clipping. max <= 0 disables clipping.
func ClipGradNorm(g *model.Params, max float64) float64 {
	norm := g.Norm()
	if max <= 0 || norm <= max || norm == 0 {
		return norm
	}
	scale := max / norm
	for _, t := range g.Tensors() {
		for i := range t.Data {
			t.Data[i] *= scale
		}
	}
	return norm
}

// #endregion clip
