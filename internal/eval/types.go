package eval

import (
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
)

// #region eval-config
// EvalConfig holds thresholds for post-training validation.
type EvalConfig struct {
	MaxParamNorm   float64 // reject if the parameter L2 norm exceeds this
	RandomProbes   int     // extra seeded random policies
	Seed           int64
	MinSensitivity float64 // warn if score barely reacts to policy
}

// DefaultEvalConfig returns the thresholds used by the train command.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxParamNorm:   500.0,
		RandomProbes:   8,
		Seed:           7,
		MinSensitivity: 0.01,
	}
}

// #endregion eval-config

// #region predictor
// Predictor is anything that maps a policy to the eight head outputs.
type Predictor interface {
	Infer(v policy.Vector) (model.PredictionSet, error)
}

// #endregion predictor

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-training validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// Failures lists the names of failing checks.
func (r EvalResult) Failures() []string {
	var out []string
	for _, m := range r.Metrics {
		if !m.Pass {
			out = append(out, m.Name)
		}
	}
	return out
}

// #endregion eval-result
