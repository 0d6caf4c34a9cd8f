package model

// #region heads-forward
// predict maps the final state through every head and its sigmoid.
func (m *Model) predict(state []float64) PredictionSet {
	var out PredictionSet
	y := make([]float64, 1)
	for _, metric := range Metrics {
		m.params.Heads.Head(metric).apply(state, y)
		out.Set(metric, sigmoid(y[0]))
	}
	return out
}

// #endregion heads-forward

// #region heads-backward
// headsBackward accumulates head gradients of the summed squared error and
// returns the loss together with the gradient for the shared state.
func (m *Model) headsBackward(state []float64, pred PredictionSet, t Targets, g *Params) (float64, []float64) {
	var loss float64
	dstate := make([]float64, len(state))
	da := make([]float64, 1)
	for i, metric := range Metrics {
		if !t.Present[i] {
			continue
		}
		y := pred.Get(metric)
		diff := y - t.Values.Get(metric)
		loss += diff * diff
		da[0] = 2 * diff * y * (1 - y)
		m.params.Heads.Head(metric).accumulate(g.Heads.Head(metric), state, da, dstate)
	}
	return loss, dstate
}

// #endregion heads-backward
