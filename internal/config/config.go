package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielpatrickdp/sanction-impact/internal/explain"
	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"github.com/danielpatrickdp/sanction-impact/internal/snapshot"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
	"github.com/danielpatrickdp/sanction-impact/internal/train"
	"gopkg.in/yaml.v3"
)

// #region types
// Config is the process-wide configuration shared by every command.
type Config struct {
	DBPath    string           `yaml:"db"`
	Model     ModelSection     `yaml:"model"`
	Train     TrainSection     `yaml:"train"`
	Indicator IndicatorSection `yaml:"indicator"`
	Explainer ExplainerSection `yaml:"explainer"`
}

// ModelSection fixes the network shape. Input width and node count come
// from the trade graph.
type ModelSection struct {
	Hidden    int    `yaml:"hidden"`
	Window    int    `yaml:"window"`
	Focal     string `yaml:"focal"`     // country code
	Injection string `yaml:"injection"` // "broadcast" | "focal"
}

// TrainSection overrides the training schedule. Zero values keep the
// schedule default of the chosen source.
type TrainSection struct {
	Source       string  `yaml:"source"` // "synthetic" | "historical"
	Epochs       int     `yaml:"epochs"`
	Scenarios    int     `yaml:"scenarios"`
	LearningRate float64 `yaml:"learning_rate"`
	Optimizer    string  `yaml:"optimizer"`
	Seed         int64   `yaml:"seed"`
}

// IndicatorSection configures the World Bank provider.
type IndicatorSection struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ExplainerSection configures the explanation generator endpoint.
type ExplainerSection struct {
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

// #endregion types

// #region defaults
// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath: "sanction_impact.db",
		Model: ModelSection{
			Hidden:    model.DefaultHidden,
			Window:    model.DefaultWindow,
			Focal:     "IND",
			Injection: "broadcast",
		},
		Train: TrainSection{
			Source:    "synthetic",
			Optimizer: "adam",
			Seed:      42,
		},
		Indicator: IndicatorSection{
			BaseURL:        "https://api.worldbank.org/v2",
			TimeoutSeconds: 15,
		},
		Explainer: ExplainerSection{
			Addr:    "localhost:50061",
			Timeout: "30s",
		},
	}
}

// #endregion defaults

// #region load
// Load reads the optional YAML file at path over the defaults, then applies
// environment overrides. An empty path or a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("unmarshal %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SANCTION_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SANCTION_FOCAL"); v != "" {
		c.Model.Focal = strings.ToUpper(v)
	}
	if v := os.Getenv("SANCTION_INJECTION"); v != "" {
		c.Model.Injection = v
	}
	if v := os.Getenv("SANCTION_SOURCE"); v != "" {
		c.Train.Source = v
	}
	if v := os.Getenv("INDICATOR_BASE_URL"); v != "" {
		c.Indicator.BaseURL = v
	}
	if v := os.Getenv("EXPLAINER_ADDR"); v != "" {
		c.Explainer.Addr = v
	}
	if v := os.Getenv("EXPLAINER_TIMEOUT"); v != "" {
		c.Explainer.Timeout = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SANCTION_HIDDEN", &c.Model.Hidden},
		{"SANCTION_WINDOW", &c.Model.Window},
		{"SANCTION_EPOCHS", &c.Train.Epochs},
		{"SANCTION_SCENARIOS", &c.Train.Scenarios},
		{"INDICATOR_TIMEOUT", &c.Indicator.TimeoutSeconds},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := os.Getenv("SANCTION_LR"); v != "" {
		lr, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SANCTION_LR: %w", err)
		}
		c.Train.LearningRate = lr
	}
	if v := os.Getenv("SANCTION_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SANCTION_SEED: %w", err)
		}
		c.Train.Seed = seed
	}
	return nil
}

// #endregion load

// #region validate
// Validate checks the settings that do not depend on the trade graph.
func (c Config) Validate() error {
	switch {
	case c.Model.Hidden <= 0:
		return &model.ConfigError{Field: "hidden", Value: c.Model.Hidden, Reason: "must be positive"}
	case c.Model.Window <= 0:
		return &model.ConfigError{Field: "window", Value: c.Model.Window, Reason: "must be positive"}
	case c.Train.Epochs < 0:
		return &model.ConfigError{Field: "epochs", Value: c.Train.Epochs, Reason: "must not be negative"}
	}
	if c.Model.Focal == "" {
		return &model.ConfigError{Field: "focal", Value: -1, Reason: "no focal country"}
	}
	if _, err := snapshot.ParseMode(c.Model.Injection); err != nil {
		return err
	}
	if c.Train.Source != "synthetic" && c.Train.Source != "historical" {
		return fmt.Errorf("unknown training source %q", c.Train.Source)
	}
	if _, err := time.ParseDuration(c.Explainer.Timeout); err != nil {
		return fmt.Errorf("explainer timeout: %w", err)
	}
	return nil
}

// #endregion validate

// #region derived
// ModelConfig resolves the network shape against a concrete trade graph.
func (c Config) ModelConfig(g *tradegraph.Graph) (model.Config, error) {
	focal, ok := g.IndexOf(c.Model.Focal)
	if !ok {
		return model.Config{}, &model.ConfigError{
			Field:  "focal",
			Value:  -1,
			Reason: fmt.Sprintf("country %q is not in the trade graph", c.Model.Focal),
		}
	}
	mc := model.Config{
		InputDim: g.FeatureWidth() + policy.Width,
		Hidden:   c.Model.Hidden,
		Window:   c.Model.Window,
		NumNodes: g.NumNodes(),
		Focal:    focal,
	}
	if err := mc.Validate(); err != nil {
		return model.Config{}, err
	}
	return mc, nil
}

// Injection returns the parsed snapshot mode.
func (c Config) Injection() (snapshot.Mode, error) {
	return snapshot.ParseMode(c.Model.Injection)
}

// TrainConfig returns the schedule of the configured source with the
// non-zero overrides applied.
func (c Config) TrainConfig() (train.Config, error) {
	tc := train.DefaultConfig()
	if c.Train.Source == "historical" {
		tc = train.HistoricalConfig()
	}
	if c.Train.Epochs > 0 {
		tc.Epochs = c.Train.Epochs
	}
	if c.Train.Scenarios > 0 {
		tc.Scenarios = c.Train.Scenarios
	}
	if c.Train.LearningRate > 0 {
		tc.LearningRate = c.Train.LearningRate
	}
	if c.Train.Optimizer != "" {
		tc.Optimizer = c.Train.Optimizer
	}
	tc.Seed = c.Train.Seed
	mode, err := c.Injection()
	if err != nil {
		return train.Config{}, err
	}
	tc.Injection = mode
	if err := tc.Validate(); err != nil {
		return train.Config{}, err
	}
	return tc, nil
}

// IndicatorConfig returns the World Bank provider settings.
func (c Config) IndicatorConfig() indicator.Config {
	ic := indicator.DefaultConfig()
	if c.Indicator.BaseURL != "" {
		ic.BaseURL = c.Indicator.BaseURL
	}
	if c.Indicator.TimeoutSeconds > 0 {
		ic.Timeout = time.Duration(c.Indicator.TimeoutSeconds) * time.Second
	}
	return ic
}

// ExplainerConfig returns the explanation endpoint settings.
func (c Config) ExplainerConfig() explain.Config {
	ec := explain.Config{Addr: c.Explainer.Addr, Timeout: 30 * time.Second}
	if d, err := time.ParseDuration(c.Explainer.Timeout); err == nil && d > 0 {
		ec.Timeout = d
	}
	return ec
}

// #endregion derived
