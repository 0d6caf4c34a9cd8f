package policy

import (
	"fmt"
	"math"
	"math/rand"
)

// Width is the number of scalar fields in a policy vector.
const Width = 7

// #region vector
// Vector describes one sanction policy applied to the focal country.
type Vector struct {
	Severity       float64 `json:"severity" yaml:"severity"`
	Financial      float64 `json:"financial" yaml:"financial"`
	Trade          float64 `json:"trade" yaml:"trade"`
	Technology     float64 `json:"technology" yaml:"technology"`
	Energy         float64 `json:"energy" yaml:"energy"`
	IssuerStrength float64 `json:"issuer_strength" yaml:"issuer_strength"`
	Binding        float64 `json:"binding" yaml:"binding"`
}

// Values returns the fields in feature-column order.
func (v Vector) Values() [Width]float64 {
	return [Width]float64{
		v.Severity, v.Financial, v.Trade, v.Technology,
		v.Energy, v.IssuerStrength, v.Binding,
	}
}

// FromValues is the inverse of Values.
func FromValues(vals [Width]float64) Vector {
	return Vector{
		Severity:       vals[0],
		Financial:      vals[1],
		Trade:          vals[2],
		Technology:     vals[3],
		Energy:         vals[4],
		IssuerStrength: vals[5],
		Binding:        vals[6],
	}
}

// #endregion vector

// #region severity
// Severity weights for the derived sanction intensity.
const (
	weightFinancial  = 0.25
	weightTrade      = 0.20
	weightTechnology = 0.15
	weightEnergy     = 0.20
	weightIssuer     = 0.10
	weightBinding    = 0.10
)

// DeriveSeverity computes severity as a fixed weighted sum of the other six
// fields, clipped to [0,1].
func DeriveSeverity(v Vector) float64 {
	s := weightFinancial*v.Financial +
		weightTrade*v.Trade +
		weightTechnology*v.Technology +
		weightEnergy*v.Energy +
		weightIssuer*v.IssuerStrength +
		weightBinding*v.Binding
	return clip01(s)
}

// WithDerivedSeverity returns v with Severity replaced by DeriveSeverity(v).
func (v Vector) WithDerivedSeverity() Vector {
	v.Severity = DeriveSeverity(v)
	return v
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion severity

// #region validate
// Validate rejects non-finite fields. Values outside the conventional ranges
// are accepted; the model treats them as plain numbers.
func (v Vector) Validate() error {
	names := [Width]string{"severity", "financial", "trade", "technology", "energy", "issuer_strength", "binding"}
	for i, x := range v.Values() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("policy field %s is not finite", names[i])
		}
	}
	return nil
}

// #endregion validate

// #region presets
// Neutral is the no-sanction baseline.
func Neutral() Vector { return Vector{} }

// Maximal sets every field to its upper bound.
func Maximal() Vector {
	return Vector{
		Severity: 1, Financial: 1, Trade: 1, Technology: 1,
		Energy: 1, IssuerStrength: 1, Binding: 1,
	}
}

// Random draws a synthetic training policy: continuous severity and issuer
// strength in [0,1), binary flags.
func Random(rng *rand.Rand) Vector {
	flag := func() float64 { return float64(rng.Intn(2)) }
	return Vector{
		Severity:       rng.Float64(),
		Financial:      flag(),
		Trade:          flag(),
		Technology:     flag(),
		Energy:         flag(),
		IssuerStrength: rng.Float64(),
		Binding:        flag(),
	}
}

// #endregion presets

// #region request
// Request is the inbound policy description. Severity is optional; when
// absent it is derived from the other fields.
type Request struct {
	Severity       *float64 `json:"severity,omitempty" yaml:"severity,omitempty"`
	Financial      float64  `json:"financial" yaml:"financial"`
	Trade          float64  `json:"trade" yaml:"trade"`
	Technology     float64  `json:"technology" yaml:"technology"`
	Energy         float64  `json:"energy" yaml:"energy"`
	IssuerStrength float64  `json:"issuer_strength" yaml:"issuer_strength"`
	Binding        float64  `json:"binding" yaml:"binding"`
}

// Resolve turns the request into a validated Vector.
func (r Request) Resolve() (Vector, error) {
	v := Vector{
		Financial:      r.Financial,
		Trade:          r.Trade,
		Technology:     r.Technology,
		Energy:         r.Energy,
		IssuerStrength: r.IssuerStrength,
		Binding:        r.Binding,
	}
	if r.Severity != nil {
		v.Severity = *r.Severity
	} else {
		v.Severity = DeriveSeverity(v)
	}
	if err := v.Validate(); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// #endregion request
