package train

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"github.com/danielpatrickdp/sanction-impact/internal/snapshot"
)

// #region config
// Config holds optimisation parameters for one training run.
type Config struct {
	Epochs       int
	Scenarios    int // synthetic scenarios per epoch
	LearningRate float64
	Optimizer    string // "adam" | "sgd"
	Beta1        float64
	Beta2        float64
	Eps          float64
	GradClip     float64 // global gradient norm cap (0 = disabled)
	Seed         int64
	Injection    snapshot.Mode
}

// DefaultConfig returns the synthetic bootstrap schedule.
func DefaultConfig() Config {
	return Config{
		Epochs:       120,
		Scenarios:    25,
		LearningRate: 0.003,
		Optimizer:    "adam",
		Beta1:        0.9,
		Beta2:        0.999,
		Eps:          1e-8,
		GradClip:     5.0,
		Seed:         42,
		Injection:    snapshot.Broadcast,
	}
}

// HistoricalConfig returns the schedule for next-year forecasting on
// fetched indicator labels.
func HistoricalConfig() Config {
	cfg := DefaultConfig()
	cfg.Epochs = 25
	cfg.LearningRate = 0.001
	return cfg
}

// Validate rejects schedules that cannot run.
func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return &model.ConfigError{Field: "epochs", Value: c.Epochs, Reason: "must be positive"}
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %v", c.LearningRate)
	case c.Optimizer != "adam" && c.Optimizer != "sgd":
		return fmt.Errorf("unknown optimizer %q", c.Optimizer)
	}
	return nil
}

// #endregion config

// #region example
// Example is one policy scenario and its labels.
type Example struct {
	Policy  policy.Vector
	Targets model.Targets
	Label   string // e.g. "synthetic" or "2014"
}

// Epoch is the data a LabelSource yields for one pass.
type Epoch struct {
	Examples []Example
	Lookups  int // external readings attempted
	Degrades []logging.Degrade
}

// LabelSource supplies training examples epoch by epoch.
type LabelSource interface {
	Name() string
	Epoch(ctx context.Context, epoch int) (Epoch, error)
}

// #endregion example

// #region report
// Report summarises a finished training run.
type Report struct {
	Source         string
	EpochLoss      []float64 // summed example loss per epoch
	Steps          int
	FinalLoss      float64 // mean example loss of the last trained epoch
	DegradedLabels int
	FailedEpochs   int
}

// #endregion report
