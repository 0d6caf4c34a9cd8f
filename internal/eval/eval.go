package eval

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
)

// #region eval-harness
// EvalHarness probes a trained predictor before it is allowed to serve.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

type probe struct {
	name string
	v    policy.Vector
}

// Run checks that every probe policy yields a complete, finite, bounded
// prediction set, that inference is repeatable and that the parameter norm
// stays under the cap. Score sensitivity is reported but never fails.
func (h *EvalHarness) Run(p Predictor, paramNorm float64) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string
	fail := func(reason string) {
		passed = false
		failReasons = append(failReasons, reason)
	}

	// 1. Parameter norm bound
	normPass := !math.IsNaN(paramNorm) && paramNorm <= h.config.MaxParamNorm
	metrics = append(metrics, EvalMetric{Name: "param_norm", Value: paramNorm, Pass: normPass})
	if !normPass {
		fail(fmt.Sprintf("param norm %.4f exceeds %.4f", paramNorm, h.config.MaxParamNorm))
	}

	// 2. Bounded output on every probe
	probes := []probe{{"neutral", policy.Neutral()}, {"maximal", policy.Maximal()}}
	rng := rand.New(rand.NewSource(h.config.Seed))
	for i := 0; i < h.config.RandomProbes; i++ {
		probes = append(probes, probe{fmt.Sprintf("random_%d", i), policy.Random(rng)})
	}

	outputs := make(map[string]model.PredictionSet, len(probes))
	for _, pr := range probes {
		pred, err := p.Infer(pr.v)
		if err != nil {
			metrics = append(metrics, EvalMetric{Name: "probe_" + pr.name, Value: math.NaN(), Pass: false})
			fail(fmt.Sprintf("probe %s: %v", pr.name, err))
			continue
		}
		worst, ok := boundsViolation(pred)
		metrics = append(metrics, EvalMetric{Name: "probe_" + pr.name, Value: worst, Pass: ok})
		if !ok {
			fail(fmt.Sprintf("probe %s: output outside [0,1] or not finite", pr.name))
		}
		outputs[pr.name] = pred
	}

	// 3. Repeatability on the maximal probe
	if first, ok := outputs["maximal"]; ok {
		again, err := p.Infer(policy.Maximal())
		same := err == nil && again == first
		metrics = append(metrics, EvalMetric{Name: "deterministic", Value: boolValue(same), Pass: same})
		if !same {
			fail("repeated inference differs")
		}
	}

	// 4. Sensitivity: informational only
	if n, ok := outputs["neutral"]; ok {
		if m, ok := outputs["maximal"]; ok {
			sens := math.Abs(m.Score - n.Score)
			metrics = append(metrics, EvalMetric{Name: "score_sensitivity", Value: sens, Pass: sens >= h.config.MinSensitivity})
		}
	}

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// boundsViolation returns the largest distance of any head from [0,1] and
// whether every head is finite and in range.
func boundsViolation(p model.PredictionSet) (float64, bool) {
	var worst float64
	ok := true
	for _, m := range model.Metrics {
		v := p.Get(m)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.Inf(1), false
		}
		d := 0.0
		if v < 0 {
			d = -v
		} else if v > 1 {
			d = v - 1
		}
		if d > 0 {
			ok = false
		}
		worst = math.Max(worst, d)
	}
	return worst, ok
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
