package model

// #region config
// Config fixes the model dimensions at construction time.
type Config struct {
	InputDim int // static feature width + policy width
	Hidden   int // embedding and recurrent width
	Window   int // snapshots per prediction
	NumNodes int // countries in the trade graph
	Focal    int // row whose trajectory is predicted
}

// DefaultHidden and DefaultWindow match the reference network.
const (
	DefaultHidden = 64
	DefaultWindow = 5
)

// Validate returns a *ConfigError for the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.InputDim <= 0:
		return &ConfigError{Field: "input_dim", Value: c.InputDim, Reason: "must be positive"}
	case c.Hidden <= 0:
		return &ConfigError{Field: "hidden", Value: c.Hidden, Reason: "must be positive"}
	case c.Window <= 0:
		return &ConfigError{Field: "window", Value: c.Window, Reason: "must be positive"}
	case c.NumNodes < 2:
		return &ConfigError{Field: "num_nodes", Value: c.NumNodes, Reason: "trade graph needs at least 2 countries"}
	case c.Focal < 0 || c.Focal >= c.NumNodes:
		return &ConfigError{Field: "focal", Value: c.Focal, Reason: "unknown focal node index"}
	}
	return nil
}

// #endregion config

// #region metric
// Metric identifies one of the eight regression heads.
type Metric int

const (
	MetricGDP Metric = iota
	MetricCPI
	MetricFX
	MetricTrade
	MetricFDI
	MetricRes
	MetricScore
	MetricDuration
)

// NumMetrics is the size of the output contract.
const NumMetrics = 8

// Metrics lists every head in declaration order.
var Metrics = [NumMetrics]Metric{
	MetricGDP, MetricCPI, MetricFX, MetricTrade,
	MetricFDI, MetricRes, MetricScore, MetricDuration,
}

func (m Metric) String() string {
	switch m {
	case MetricGDP:
		return "gdp"
	case MetricCPI:
		return "cpi"
	case MetricFX:
		return "fx"
	case MetricTrade:
		return "trade"
	case MetricFDI:
		return "fdi"
	case MetricRes:
		return "res"
	case MetricScore:
		return "score"
	case MetricDuration:
		return "duration"
	}
	return "unknown"
}

// ParseMetric maps a head name back to its Metric.
func ParseMetric(name string) (Metric, bool) {
	for _, m := range Metrics {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

// #endregion metric

// #region prediction-set
// PredictionSet holds one sigmoid-bounded value per head.
type PredictionSet struct {
	GDP      float64 `json:"gdp" yaml:"gdp"`
	CPI      float64 `json:"cpi" yaml:"cpi"`
	FX       float64 `json:"fx" yaml:"fx"`
	Trade    float64 `json:"trade" yaml:"trade"`
	FDI      float64 `json:"fdi" yaml:"fdi"`
	Res      float64 `json:"res" yaml:"res"`
	Score    float64 `json:"score" yaml:"score"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// Get returns the value for m.
func (p PredictionSet) Get(m Metric) float64 {
	return *p.field(m)
}

// Set assigns the value for m.
func (p *PredictionSet) Set(m Metric, v float64) {
	*p.field(m) = v
}

func (p *PredictionSet) field(m Metric) *float64 {
	switch m {
	case MetricGDP:
		return &p.GDP
	case MetricCPI:
		return &p.CPI
	case MetricFX:
		return &p.FX
	case MetricTrade:
		return &p.Trade
	case MetricFDI:
		return &p.FDI
	case MetricRes:
		return &p.Res
	case MetricScore:
		return &p.Score
	case MetricDuration:
		return &p.Duration
	}
	panic("model: unknown metric")
}

// Map returns the predictions keyed by head name.
func (p PredictionSet) Map() map[string]float64 {
	out := make(map[string]float64, NumMetrics)
	for _, m := range Metrics {
		out[m.String()] = p.Get(m)
	}
	return out
}

// #endregion prediction-set

// #region targets
// Targets carries training labels. Heads with Present[m] == false are left
// out of the loss.
type Targets struct {
	Values  PredictionSet
	Present [NumMetrics]bool
}

// FullTargets marks every head of v as labelled.
func FullTargets(v PredictionSet) Targets {
	t := Targets{Values: v}
	for i := range t.Present {
		t.Present[i] = true
	}
	return t
}

// #endregion targets

// #region snapshot
// Edge is one directed weighted link between node indices.
type Edge struct {
	Src    int
	Dst    int
	Weight float64
}

// Snapshot is one graph instance: a node feature matrix over a fixed topology.
type Snapshot struct {
	Features [][]float64 // [numNodes][InputDim]
	Edges    []Edge
}

// NumNodes returns the row count of the feature matrix.
func (s Snapshot) NumNodes() int { return len(s.Features) }

// #endregion snapshot
