package train

import (
	"context"
	"math/rand"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
)

// #region simulate-impact
// SimulateImpact is the deterministic synthetic label function used to
// bootstrap plausible macroeconomic relationships before real data exists.
func SimulateImpact(v policy.Vector) model.PredictionSet {
	s, f, t, e := v.Severity, v.Financial, v.Trade, v.Energy
	i, b := v.IssuerStrength, v.Binding

	var p model.PredictionSet
	p.GDP = 0.4*s + 0.3*t + 0.2*f
	p.CPI = 0.35*e + 0.25*s + 0.2*t
	p.FX = 0.4*f + 0.2*s + 0.2*i
	p.Trade = 0.5*t + 0.2*b + 0.2*s
	p.FDI = 0.4*f + 0.3*s + 0.2*i
	p.Res = 0.3*f + 0.2*e + 0.2*s
	p.Score = (p.GDP + p.CPI + p.FX + p.Trade) / 4
	p.Duration = 0.5*b + 0.3*i + 0.2*s
	return p
}

// #endregion simulate-impact

// #region synthetic-source
// SyntheticSource draws random policies and labels them with SimulateImpact.
type SyntheticSource struct {
	rng       *rand.Rand
	scenarios int
}

// NewSyntheticSource returns a seeded source yielding scenarios examples
// per epoch.
func NewSyntheticSource(seed int64, scenarios int) *SyntheticSource {
	if scenarios <= 0 {
		scenarios = DefaultConfig().Scenarios
	}
	return &SyntheticSource{rng: rand.New(rand.NewSource(seed)), scenarios: scenarios}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) Epoch(ctx context.Context, _ int) (Epoch, error) {
	ep := Epoch{Examples: make([]Example, 0, s.scenarios)}
	for k := 0; k < s.scenarios; k++ {
		if err := ctx.Err(); err != nil {
			return Epoch{}, err
		}
		v := policy.Random(s.rng)
		ep.Examples = append(ep.Examples, Example{
			Policy:  v,
			Targets: model.FullTargets(SimulateImpact(v)),
			Label:   "synthetic",
		})
	}
	return ep, nil
}

// #endregion synthetic-source
