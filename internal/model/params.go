package model

import (
	"fmt"
	"math"
	"math/rand"
)

// #region linear
// Linear is a dense affine map with a row-major [Out][In] weight matrix.
type Linear struct {
	In     int
	Out    int
	Weight []float64
	Bias   []float64
}

func newLinear(in, out int) Linear {
	return Linear{
		In:     in,
		Out:    out,
		Weight: make([]float64, in*out),
		Bias:   make([]float64, out),
	}
}

// apply writes W·x + b into dst.
func (l *Linear) apply(x, dst []float64) {
	for o := 0; o < l.Out; o++ {
		row := l.Weight[o*l.In : (o+1)*l.In]
		sum := l.Bias[o]
		for i, w := range row {
			sum += w * x[i]
		}
		dst[o] = sum
	}
}

// accumulate adds the gradient of W·x + b for upstream grad dy into g,
// and adds Wᵀ·dy into dx when dx is non-nil.
func (l *Linear) accumulate(g *Linear, x, dy, dx []float64) {
	for o := 0; o < l.Out; o++ {
		d := dy[o]
		if d == 0 {
			continue
		}
		g.Bias[o] += d
		row := l.Weight[o*l.In : (o+1)*l.In]
		grow := g.Weight[o*l.In : (o+1)*l.In]
		for i := range row {
			grow[i] += d * x[i]
			if dx != nil {
				dx[i] += d * row[i]
			}
		}
	}
}

func (l *Linear) check(name string, in, out int) error {
	if l.In != in || l.Out != out || len(l.Weight) != in*out || len(l.Bias) != out {
		return &DimensionError{
			Got:    len(l.Weight),
			Want:   in * out,
			Detail: fmt.Sprintf("%s expects [%d][%d]", name, out, in),
		}
	}
	return nil
}

// #endregion linear

// #region heads
// Heads holds the eight scalar projections. Each is a Linear with Out == 1.
type Heads struct {
	GDP      Linear
	CPI      Linear
	FX       Linear
	Trade    Linear
	FDI      Linear
	Res      Linear
	Score    Linear
	Duration Linear
}

// Head returns the projection for m.
func (h *Heads) Head(m Metric) *Linear {
	switch m {
	case MetricGDP:
		return &h.GDP
	case MetricCPI:
		return &h.CPI
	case MetricFX:
		return &h.FX
	case MetricTrade:
		return &h.Trade
	case MetricFDI:
		return &h.FDI
	case MetricRes:
		return &h.Res
	case MetricScore:
		return &h.Score
	case MetricDuration:
		return &h.Duration
	}
	panic("model: unknown metric")
}

// #endregion heads

// #region params
// Params is the full trainable parameter set. The same type doubles as the
// gradient accumulator during training.
type Params struct {
	Conv1     Linear // InputDim -> Hidden
	Conv2     Linear // Hidden -> Hidden
	GRUInput  Linear // Hidden -> 3*Hidden, gate order r, z, n
	GRUHidden Linear // Hidden -> 3*Hidden, gate order r, z, n
	Heads     Heads
}

// Tensor names one flat parameter slice.
type Tensor struct {
	Name string
	Data []float64
}

// NewParams allocates zeroed parameters shaped for cfg.
func NewParams(cfg Config) *Params {
	p := &Params{
		Conv1:     newLinear(cfg.InputDim, cfg.Hidden),
		Conv2:     newLinear(cfg.Hidden, cfg.Hidden),
		GRUInput:  newLinear(cfg.Hidden, 3*cfg.Hidden),
		GRUHidden: newLinear(cfg.Hidden, 3*cfg.Hidden),
	}
	for _, m := range Metrics {
		*p.Heads.Head(m) = newLinear(cfg.Hidden, 1)
	}
	return p
}

// InitParams draws initial weights from rng: Glorot-uniform graph
// convolutions with zero bias, and U(-1/sqrt(fan_in), 1/sqrt(fan_in)) for the
// recurrent cell and the heads.
func InitParams(cfg Config, rng *rand.Rand) *Params {
	p := NewParams(cfg)

	glorot := func(l *Linear) {
		limit := math.Sqrt(6.0 / float64(l.In+l.Out))
		fill(l.Weight, rng, limit)
	}
	glorot(&p.Conv1)
	glorot(&p.Conv2)

	k := 1 / math.Sqrt(float64(cfg.Hidden))
	for _, l := range []*Linear{&p.GRUInput, &p.GRUHidden} {
		fill(l.Weight, rng, k)
		fill(l.Bias, rng, k)
	}
	for _, m := range Metrics {
		h := p.Heads.Head(m)
		fill(h.Weight, rng, k)
		fill(h.Bias, rng, k)
	}
	return p
}

func fill(dst []float64, rng *rand.Rand, limit float64) {
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Tensors returns every parameter slice in a fixed order. The slices alias
// the receiver's storage.
func (p *Params) Tensors() []Tensor {
	out := []Tensor{
		{"conv1.weight", p.Conv1.Weight},
		{"conv1.bias", p.Conv1.Bias},
		{"conv2.weight", p.Conv2.Weight},
		{"conv2.bias", p.Conv2.Bias},
		{"gru.input.weight", p.GRUInput.Weight},
		{"gru.input.bias", p.GRUInput.Bias},
		{"gru.hidden.weight", p.GRUHidden.Weight},
		{"gru.hidden.bias", p.GRUHidden.Bias},
	}
	for _, m := range Metrics {
		h := p.Heads.Head(m)
		out = append(out,
			Tensor{"heads." + m.String() + ".weight", h.Weight},
			Tensor{"heads." + m.String() + ".bias", h.Bias},
		)
	}
	return out
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	c := &Params{
		Conv1:     cloneLinear(p.Conv1),
		Conv2:     cloneLinear(p.Conv2),
		GRUInput:  cloneLinear(p.GRUInput),
		GRUHidden: cloneLinear(p.GRUHidden),
	}
	for _, m := range Metrics {
		*c.Heads.Head(m) = cloneLinear(*p.Heads.Head(m))
	}
	return c
}

func cloneLinear(l Linear) Linear {
	return Linear{
		In:     l.In,
		Out:    l.Out,
		Weight: append([]float64(nil), l.Weight...),
		Bias:   append([]float64(nil), l.Bias...),
	}
}

// ZeroLike returns zeroed parameters with the receiver's shapes.
func (p *Params) ZeroLike() *Params {
	c := p.Clone()
	c.Zero()
	return c
}

// Zero resets every value to 0.
func (p *Params) Zero() {
	for _, t := range p.Tensors() {
		for i := range t.Data {
			t.Data[i] = 0
		}
	}
}

// Norm returns the L2 norm over all parameters.
func (p *Params) Norm() float64 {
	var sum float64
	for _, t := range p.Tensors() {
		for _, v := range t.Data {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// Count returns the number of scalar parameters.
func (p *Params) Count() int {
	n := 0
	for _, t := range p.Tensors() {
		n += len(t.Data)
	}
	return n
}

// Finite reports whether every value is neither NaN nor Inf.
func (p *Params) Finite() bool {
	for _, t := range p.Tensors() {
		for _, v := range t.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Check verifies that every tensor is shaped for cfg.
func (p *Params) Check(cfg Config) error {
	if err := p.Conv1.check("conv1", cfg.InputDim, cfg.Hidden); err != nil {
		return err
	}
	if err := p.Conv2.check("conv2", cfg.Hidden, cfg.Hidden); err != nil {
		return err
	}
	if err := p.GRUInput.check("gru.input", cfg.Hidden, 3*cfg.Hidden); err != nil {
		return err
	}
	if err := p.GRUHidden.check("gru.hidden", cfg.Hidden, 3*cfg.Hidden); err != nil {
		return err
	}
	for _, m := range Metrics {
		if err := p.Heads.Head(m).check("heads."+m.String(), cfg.Hidden, 1); err != nil {
			return err
		}
	}
	return nil
}

// #endregion params
