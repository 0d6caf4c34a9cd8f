package gate

import (
	"github.com/danielpatrickdp/sanction-impact/internal/eval"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/train"
)

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNumeric    VetoType = "numeric"
	VetoDrift      VetoType = "drift"
	VetoNorm       VetoType = "param_norm"
	VetoNoData     VetoType = "no_data"
	VetoProbe      VetoType = "probe_failure"
	VetoRegression VetoType = "loss_regression"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	MaxDeltaNorm  float64 // max L2 distance between active and proposed params
	MaxParamNorm  float64 // max L2 norm of the proposed params
	LossTolerance float64 // candidate may exceed baseline loss by this much
}

// DefaultGateConfig returns the thresholds used by the train command.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxDeltaNorm:  250.0,
		MaxParamNorm:  500.0,
		LossTolerance: 0.0,
	}
}

// #endregion gate-config

// #region candidate
// Candidate bundles everything known about a trained parameter set.
type Candidate struct {
	Active   *model.Params // nil on first training
	Proposed *model.Params

	BaselineLoss  float64 // active params on the holdout
	CandidateLoss float64 // proposed params on the same holdout
	HasBaseline   bool

	Report train.Report
	Probe  eval.EvalResult
}

// #endregion candidate

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	SoftScore   float64      // 0-1 composite of soft signals (for logging)
}

// #endregion gate-decision
