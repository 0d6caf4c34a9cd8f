package gate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
)

// #region gate
// Gate decides whether a trained parameter set may replace the active one.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then scores soft signals.
func (g *Gate) Evaluate(c Candidate) GateDecision {
	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Non-finite parameters or loss
	if c.Proposed == nil || !c.Proposed.Finite() {
		vetoes = append(vetoes, VetoSignal{Type: VetoNumeric, Reason: "proposed params are missing or not finite"})
	}
	if math.IsNaN(c.CandidateLoss) || math.IsInf(c.CandidateLoss, 0) {
		vetoes = append(vetoes, VetoSignal{Type: VetoNumeric, Reason: "candidate loss is not finite"})
	}

	// 2. Nothing was actually trained
	if c.Report.Steps == 0 {
		vetoes = append(vetoes, VetoSignal{Type: VetoNoData, Reason: "no optimisation steps ran"})
	}

	// 3. Parameter norm exceeds cap
	if c.Proposed != nil {
		if norm := c.Proposed.Norm(); norm > g.config.MaxParamNorm {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoNorm,
				Reason: fmt.Sprintf("param norm %.4f exceeds cap %.4f", norm, g.config.MaxParamNorm),
			})
		}
	}

	// 4. Drift from the active params exceeds cap
	deltaNorm := paramDelta(c.Active, c.Proposed)
	if deltaNorm > g.config.MaxDeltaNorm {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDrift,
			Reason: fmt.Sprintf("delta norm %.4f exceeds cap %.4f", deltaNorm, g.config.MaxDeltaNorm),
		})
	}

	// 5. Probe failure
	if !c.Probe.Passed {
		vetoes = append(vetoes, VetoSignal{Type: VetoProbe, Reason: c.Probe.Reason})
	}

	// 6. Holdout loss regressed
	if c.HasBaseline && c.CandidateLoss > c.BaselineLoss+g.config.LossTolerance {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoRegression,
			Reason: fmt.Sprintf("holdout loss %.6f worse than active %.6f", c.CandidateLoss, c.BaselineLoss),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			SoftScore:   0,
		}
	}

	// --- Soft scoring ---
	softScore := computeSoftScore(c, deltaNorm, g.config.MaxDeltaNorm)

	return GateDecision{
		Action:      "commit",
		Reason:      fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		Vetoed:      false,
		VetoSignals: nil,
		SoftScore:   softScore,
	}
}

// #endregion gate

// #region helpers
// paramDelta is the L2 distance between two parameter sets, 0 when either
// is missing or their shapes differ.
func paramDelta(a, b *model.Params) float64 {
	if a == nil || b == nil {
		return 0
	}
	ta, tb := a.Tensors(), b.Tensors()
	if len(ta) != len(tb) {
		return 0
	}
	var sum float64
	for i := range ta {
		if len(ta[i].Data) != len(tb[i].Data) {
			return 0
		}
		for j := range ta[i].Data {
			d := tb[i].Data[j] - ta[i].Data[j]
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}

// computeSoftScore produces a 0-1 composite from holdout improvement, label
// quality and drift. Logged, never blocking.
func computeSoftScore(c Candidate, deltaNorm, maxDelta float64) float64 {
	var score float64

	// Improvement component (weight 0.5)
	if c.HasBaseline && c.BaselineLoss > 0 {
		gain := (c.BaselineLoss - c.CandidateLoss) / c.BaselineLoss
		score += 0.5 * clamp01(gain)
	} else {
		score += 0.25 // neutral when there is nothing to compare against
	}

	// Data quality component (weight 0.3)
	epochs := len(c.Report.EpochLoss)
	if epochs > 0 {
		score += 0.3 * (1 - float64(c.Report.FailedEpochs)/float64(epochs))
	}

	// Stability component (weight 0.2)
	if maxDelta > 0 {
		score += 0.2 * clamp01(1-deltaNorm/maxDelta)
	}

	return score
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// #endregion helpers
