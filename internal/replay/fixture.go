package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"gopkg.in/yaml.v3"
)

// #region fixture-types

// Fixture is the top-level structure of a replay fixture, stored as JSON or
// YAML.
type Fixture struct {
	Description string            `json:"description" yaml:"description"`
	VersionID   string            `json:"version_id,omitempty" yaml:"version_id,omitempty"`
	Tolerance   float64           `json:"tolerance" yaml:"tolerance"`
	Scenarios   []FixtureScenario `json:"scenarios" yaml:"scenarios"`
}

// FixtureScenario is one policy with its expected head outputs keyed by
// metric name.
type FixtureScenario struct {
	ID           string             `json:"id" yaml:"id"`
	Policy       policy.Request     `json:"policy" yaml:"policy"`
	Expected     map[string]float64 `json:"expected,omitempty" yaml:"expected,omitempty"`
	ExpectedRisk string             `json:"expected_risk,omitempty" yaml:"expected_risk,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFixture reads and parses a fixture file. Files ending in .yaml or
// .yml are parsed as YAML, everything else as JSON.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if isYAML(path) {
		err = yaml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture stores f at path in the format implied by its extension.
func WriteFixture(path string, f *Fixture) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(f)
	} else {
		data, err = json.MarshalIndent(f, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToScenario resolves the policy and metric names of a fixture scenario.
func (fs *FixtureScenario) ToScenario() (Scenario, error) {
	v, err := fs.Policy.Resolve()
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", fs.ID, err)
	}
	sc := Scenario{ID: fs.ID, Policy: v, ExpectedRisk: fs.ExpectedRisk}
	if len(fs.Expected) > 0 {
		sc.Expected = make(map[model.Metric]float64, len(fs.Expected))
		for name, want := range fs.Expected {
			m, ok := model.ParseMetric(name)
			if !ok {
				return Scenario{}, fmt.Errorf("scenario %s: unknown metric %q", fs.ID, name)
			}
			sc.Expected[m] = want
		}
	}
	return sc, nil
}

// ToScenarios converts every fixture scenario.
func (f *Fixture) ToScenarios() ([]Scenario, error) {
	out := make([]Scenario, len(f.Scenarios))
	for i := range f.Scenarios {
		sc, err := f.Scenarios[i].ToScenario()
		if err != nil {
			return nil, err
		}
		out[i] = sc
	}
	return out, nil
}

// ToReplayConfig returns the replay settings stored in the fixture.
func (f *Fixture) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if f.Tolerance > 0 {
		cfg.Tolerance = f.Tolerance
	}
	return cfg
}

// #endregion fixture-loader

// #region fixture-export

// Record fills in Expected and ExpectedRisk of every scenario in f from the
// results of a replay over the same scenarios, turning it into a golden
// fixture.
func Record(f *Fixture, results []ReplayResult) error {
	if len(results) != len(f.Scenarios) {
		return fmt.Errorf("record: %d results for %d scenarios", len(results), len(f.Scenarios))
	}
	for i, r := range results {
		if r.Action == "error" {
			return fmt.Errorf("record: scenario %s: %s", r.ScenarioID, r.Reason)
		}
		f.Scenarios[i].Expected = r.Predicted.Map()
		f.Scenarios[i].ExpectedRisk = r.Risk.Level
	}
	return nil
}

// #endregion fixture-export
