package indicator

import (
	"context"
	"fmt"
)

// #region reading
// Status says whether a Reading holds a real observation.
type Status int

const (
	StatusFetched Status = iota
	StatusDefaulted
)

func (s Status) String() string {
	if s == StatusFetched {
		return "fetched"
	}
	return "defaulted"
}

// Reading is the two-variant result of an indicator lookup: either a fetched
// value or a zero default carrying the cause.
type Reading struct {
	Value  float64
	Status Status
	Cause  string
}

// Fetched wraps an observed value.
func Fetched(v float64) Reading {
	return Reading{Value: v, Status: StatusFetched}
}

// Defaulted records a zero substitution and why it happened.
func Defaulted(cause string) Reading {
	return Reading{Status: StatusDefaulted, Cause: cause}
}

// IsDefaulted reports whether the value is a substitution.
func (r Reading) IsDefaulted() bool { return r.Status == StatusDefaulted }

func (r Reading) String() string {
	if r.IsDefaulted() {
		return fmt.Sprintf("defaulted(%s)", r.Cause)
	}
	return fmt.Sprintf("fetched(%g)", r.Value)
}

// #endregion reading

// #region provider
// Provider returns indicator values per country and indicator code. It never
// fails: unavailable values come back Defaulted.
type Provider interface {
	// Latest returns the most recent non-null observation.
	Latest(ctx context.Context, country, indicator string) Reading
	// ForYear returns the observation for a single calendar year.
	ForYear(ctx context.Context, country, indicator string, year int) Reading
}

// #endregion provider

// #region static
// Static serves readings from memory. Keys are "COUNTRY/INDICATOR" for
// Latest and "COUNTRY/INDICATOR/YEAR" for ForYear.
type Static struct {
	Values map[string]float64
}

// NewStatic returns an empty Static provider.
func NewStatic() *Static {
	return &Static{Values: make(map[string]float64)}
}

// Set stores the latest value for country and indicator.
func (s *Static) Set(country, indicator string, v float64) {
	s.Values[country+"/"+indicator] = v
}

// SetYear stores the value for one year.
func (s *Static) SetYear(country, indicator string, year int, v float64) {
	s.Values[fmt.Sprintf("%s/%s/%d", country, indicator, year)] = v
}

func (s *Static) Latest(_ context.Context, country, indicator string) Reading {
	if v, ok := s.Values[country+"/"+indicator]; ok {
		return Fetched(v)
	}
	return Defaulted("not in static table")
}

func (s *Static) ForYear(_ context.Context, country, indicator string, year int) Reading {
	if v, ok := s.Values[fmt.Sprintf("%s/%s/%d", country, indicator, year)]; ok {
		return Fetched(v)
	}
	return Defaulted("not in static table")
}

// #endregion static
