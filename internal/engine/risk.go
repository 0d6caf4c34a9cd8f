package engine

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
)

// #region risk
// Risk levels by shock score.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// maxShock is the largest possible shock: three heads bounded by 1.
const maxShock = 3.0

// Risk summarises how hard a prediction hits the focal economy.
type Risk struct {
	Shock      float64 `json:"shock"`
	Level      string  `json:"risk_level"`
	Compliance int     `json:"compliance_score"`
	Summary    string  `json:"summary"`
}

// RiskPolicy is the standing probe used for risk dashboards: financial,
// trade and energy sanctions from a fairly strong, binding issuer.
func RiskPolicy() policy.Vector {
	return policy.Vector{
		Financial:      1,
		Trade:          1,
		Energy:         1,
		IssuerStrength: 0.7,
		Binding:        1,
	}.WithDerivedSeverity()
}

// AssessRisk scores p by the combined gdp, trade and fdi impact.
func AssessRisk(p model.PredictionSet) Risk {
	shock := math.Abs(p.GDP) + math.Abs(p.Trade) + math.Abs(p.FDI)

	level := RiskLow
	switch {
	case shock > 2.4:
		level = RiskCritical
	case shock > 1.5:
		level = RiskHigh
	case shock > 0.6:
		level = RiskMedium
	}

	return Risk{
		Shock:      shock,
		Level:      level,
		Compliance: int((1 - math.Min(shock/maxShock, 1)) * 100),
		Summary:    fmt.Sprintf("Model-derived shock score %.2f", shock),
	}
}

// AssessPolicy runs Infer for v and scores the result.
func (e *Engine) AssessPolicy(v policy.Vector) (Risk, model.PredictionSet, error) {
	p, err := e.Infer(v)
	if err != nil {
		return Risk{}, model.PredictionSet{}, err
	}
	return AssessRisk(p), p, nil
}

// #endregion risk
