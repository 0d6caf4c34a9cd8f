package model

import (
	"fmt"
	"math/rand"
)

// #region model
// Model wires the spatial encoder, the temporal aggregator and the
// multi-head regressor over one parameter set. Inference methods never write
// to the parameters, so a Model may be shared by concurrent readers.
type Model struct {
	cfg    Config
	params *Params
}

// New builds a freshly initialised model. The same seed always yields the
// same parameters.
func New(cfg Config, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	return &Model{cfg: cfg, params: InitParams(cfg, rng)}, nil
}

// FromParams wraps an existing parameter set after checking its shapes.
func FromParams(cfg Config, p *Params) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("from params: nil parameter set")
	}
	if err := p.Check(cfg); err != nil {
		return nil, fmt.Errorf("from params: %w", err)
	}
	return &Model{cfg: cfg, params: p}, nil
}

// Config returns the construction-time dimensions.
func (m *Model) Config() Config { return m.cfg }

// Params exposes the parameter set. Callers other than the trainer must
// treat it as read-only.
func (m *Model) Params() *Params { return m.params }

// #endregion model

// #region components
// Encode runs two rounds of weighted graph convolution over one snapshot and
// returns the [numNodes][Hidden] embedding matrix.
func (m *Model) Encode(s Snapshot) ([][]float64, error) {
	tr, err := m.encode(s)
	if err != nil {
		return nil, err
	}
	return tr.h2, nil
}

// Aggregate consumes the embedding sequence in chronological order and
// returns the final recurrent state.
func (m *Model) Aggregate(seq [][]float64) ([]float64, error) {
	return m.aggregate(seq, nil)
}

// Predict maps a final state to the eight bounded head outputs.
func (m *Model) Predict(state []float64) (PredictionSet, error) {
	if len(state) != m.cfg.Hidden {
		return PredictionSet{}, &DimensionError{Got: len(state), Want: m.cfg.Hidden, Detail: "final state width"}
	}
	return m.predict(state), nil
}

// Embeddings encodes every snapshot and returns the focal row of each, in
// snapshot order.
func (m *Model) Embeddings(seq []Snapshot) ([][]float64, error) {
	if err := m.checkWindow(len(seq)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(seq))
	for t, s := range seq {
		h, err := m.Encode(s)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", t, err)
		}
		out[t] = h[m.cfg.Focal]
	}
	return out, nil
}

func (m *Model) checkWindow(n int) error {
	if n == 0 || n != m.cfg.Window {
		return &LengthError{Got: n, Want: m.cfg.Window}
	}
	return nil
}

// #endregion components

// #region forward
// Forward runs the full pipeline over a window of snapshots.
func (m *Model) Forward(seq []Snapshot) (PredictionSet, error) {
	emb, err := m.Embeddings(seq)
	if err != nil {
		return PredictionSet{}, err
	}
	state, err := m.Aggregate(emb)
	if err != nil {
		return PredictionSet{}, err
	}
	return m.predict(state), nil
}

// #endregion forward

// #region loss-and-grad
// LossAndGrad runs the forward pipeline, computes the summed squared error
// over the labelled heads, and adds the gradient of that loss to grad.
func (m *Model) LossAndGrad(seq []Snapshot, t Targets, grad *Params) (float64, PredictionSet, error) {
	if err := m.checkWindow(len(seq)); err != nil {
		return 0, PredictionSet{}, err
	}

	traces := make([]*encoderTrace, len(seq))
	emb := make([][]float64, len(seq))
	for i, s := range seq {
		tr, err := m.encode(s)
		if err != nil {
			return 0, PredictionSet{}, fmt.Errorf("snapshot %d: %w", i, err)
		}
		traces[i] = tr
		emb[i] = tr.h2[m.cfg.Focal]
	}

	var steps []gruStep
	state, err := m.aggregate(emb, &steps)
	if err != nil {
		return 0, PredictionSet{}, err
	}
	pred := m.predict(state)

	loss, dstate := m.headsBackward(state, pred, t, grad)
	dxs := m.aggregateBackward(steps, dstate, grad)

	for i, tr := range traces {
		dh2 := matrix(len(tr.h2), m.cfg.Hidden)
		copy(dh2[m.cfg.Focal], dxs[i])
		m.encodeBackward(tr, dh2, grad)
	}
	return loss, pred, nil
}

// #endregion loss-and-grad
