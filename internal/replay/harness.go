package replay

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/sanction-impact/internal/engine"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
)

// #region types
// Predictor maps a policy to the eight head outputs.
type Predictor interface {
	Infer(v policy.Vector) (model.PredictionSet, error)
}

// Scenario is one recorded policy and what the model answered for it.
type Scenario struct {
	ID           string
	Policy       policy.Vector
	Expected     map[model.Metric]float64 // heads to check; empty records only
	ExpectedRisk string                   // optional risk level
}

// ReplayConfig controls how strictly predictions must match.
type ReplayConfig struct {
	Tolerance float64 // absolute per-head tolerance
}

// DefaultReplayConfig tolerates float noise only.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{Tolerance: 1e-9}
}

// ReplayResult captures the outcome of replaying one scenario.
type ReplayResult struct {
	ScenarioID string
	Action     string // "match" | "drift" | "error" | "recorded"
	Reason     string

	Predicted model.PredictionSet
	Risk      engine.Risk

	MaxDelta float64  // largest absolute head difference
	Drifted  []string // heads outside tolerance
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalScenarios int
	Matches        int
	Drifts         int
	Errors         int
	Recorded       int
	MaxDelta       float64
}

// #endregion types

// #region replay
// Replay runs every scenario through p and compares against the recorded
// expectations. Scenarios without expectations are only recorded.
func Replay(p Predictor, scenarios []Scenario, config ReplayConfig) []ReplayResult {
	results := make([]ReplayResult, 0, len(scenarios))

	for _, sc := range scenarios {
		pred, err := p.Infer(sc.Policy)
		if err != nil {
			results = append(results, ReplayResult{
				ScenarioID: sc.ID,
				Action:     "error",
				Reason:     err.Error(),
			})
			continue
		}

		r := ReplayResult{
			ScenarioID: sc.ID,
			Predicted:  pred,
			Risk:       engine.AssessRisk(pred),
		}

		for _, m := range model.Metrics {
			want, ok := sc.Expected[m]
			if !ok {
				continue
			}
			d := math.Abs(pred.Get(m) - want)
			if math.IsNaN(d) {
				d = math.Inf(1)
			}
			r.MaxDelta = math.Max(r.MaxDelta, d)
			if d > config.Tolerance {
				r.Drifted = append(r.Drifted, m.String())
			}
		}

		switch {
		case len(sc.Expected) == 0 && sc.ExpectedRisk == "":
			r.Action = "recorded"
			r.Reason = "no expectations"
		case len(r.Drifted) > 0:
			r.Action = "drift"
			r.Reason = fmt.Sprintf("%d heads outside tolerance %.2g (max delta %.6f): %v",
				len(r.Drifted), config.Tolerance, r.MaxDelta, r.Drifted)
		case sc.ExpectedRisk != "" && sc.ExpectedRisk != r.Risk.Level:
			r.Action = "drift"
			r.Reason = fmt.Sprintf("risk level %s, expected %s", r.Risk.Level, sc.ExpectedRisk)
		default:
			r.Action = "match"
			r.Reason = fmt.Sprintf("max delta %.2g", r.MaxDelta)
		}
		results = append(results, r)
	}

	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalScenarios: len(results)}
	for _, r := range results {
		switch r.Action {
		case "match":
			s.Matches++
		case "drift":
			s.Drifts++
		case "error":
			s.Errors++
		case "recorded":
			s.Recorded++
		}
		s.MaxDelta = math.Max(s.MaxDelta, r.MaxDelta)
	}
	return s
}

// #endregion replay
