package train

import (
	"context"
	"fmt"
	"log"

	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/snapshot"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
)

// #region trainer
// Trainer fits model parameters against a LabelSource over a fixed trade
// graph.
type Trainer struct {
	cfg   Config
	graph *tradegraph.Graph

	// OnDegrade, when set, receives every zero-filled label in addition to
	// the log line.
	OnDegrade func(logging.Degrade)
}

// New validates cfg and returns a Trainer over g.
func New(cfg Config, g *tradegraph.Graph) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("trainer: nil trade graph")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{cfg: cfg, graph: g}, nil
}

// #endregion trainer

// #region fit
// Fit trains a copy of m's parameters and returns the trained model; m itself
// is never written, so it can keep serving while Fit runs. Each example is
// one optimisation step on the summed per-head squared error. A source error
// or an epoch in which every external lookup defaulted is logged and counted
// in the report but does not stop training.
func (t *Trainer) Fit(ctx context.Context, m *model.Model, src LabelSource) (*model.Model, Report, error) {
	cfg := m.Config()
	work, err := model.FromParams(cfg, m.Params().Clone())
	if err != nil {
		return nil, Report{}, err
	}
	opts := snapshot.OptionsFor(cfg, t.cfg.Injection)
	opt := NewOptimizer(t.cfg)
	grad := work.Params().ZeroLike()

	report := Report{Source: src.Name()}
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		ep, err := src.Epoch(ctx, epoch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, report, ctx.Err()
			}
			log.Printf("train: epoch %d: %s source failed: %v", epoch+1, src.Name(), err)
			report.FailedEpochs++
			report.EpochLoss = append(report.EpochLoss, 0)
			continue
		}
		t.recordDegrades(ep, epoch, &report)

		var total float64
		for _, ex := range ep.Examples {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
			seq, err := snapshot.Build(t.graph, ex.Policy, opts)
			if err != nil {
				return nil, report, fmt.Errorf("epoch %d example %s: %w", epoch+1, ex.Label, err)
			}
			grad.Zero()
			loss, _, err := work.LossAndGrad(seq, ex.Targets, grad)
			if err != nil {
				return nil, report, fmt.Errorf("epoch %d example %s: %w", epoch+1, ex.Label, err)
			}
			ClipGradNorm(grad, t.cfg.GradClip)
			opt.Step(work.Params(), grad)
			total += loss
			report.Steps++
		}

		report.EpochLoss = append(report.EpochLoss, total)
		if len(ep.Examples) > 0 {
			report.FinalLoss = total / float64(len(ep.Examples))
		}
		log.Printf("train: epoch %d/%d %s loss %.4f (%d examples)",
			epoch+1, t.cfg.Epochs, src.Name(), total, len(ep.Examples))
	}
	return work, report, nil
}

func (t *Trainer) recordDegrades(ep Epoch, epoch int, report *Report) {
	for _, d := range ep.Degrades {
		log.Printf("train: label %s/%s year %d defaulted to 0: %s", d.Country, d.Indicator, d.Year, d.Cause)
		if t.OnDegrade != nil {
			t.OnDegrade(d)
		}
	}
	report.DegradedLabels += len(ep.Degrades)
	if ep.Lookups > 0 && len(ep.Degrades) == ep.Lookups {
		log.Printf("train: epoch %d: every one of %d label lookups failed, training on zero labels", epoch+1, ep.Lookups)
		report.FailedEpochs++
	}
}

// #endregion fit

// #region evaluate
// Evaluate returns the mean example loss of m over examples without
// changing any parameter.
func (t *Trainer) Evaluate(m *model.Model, examples []Example) (float64, error) {
	if len(examples) == 0 {
		return 0, nil
	}
	cfg := m.Config()
	opts := snapshot.OptionsFor(cfg, t.cfg.Injection)
	scratch := m.Params().ZeroLike()
	var total float64
	for _, ex := range examples {
		seq, err := snapshot.Build(t.graph, ex.Policy, opts)
		if err != nil {
			return 0, err
		}
		loss, _, err := m.LossAndGrad(seq, ex.Targets, scratch)
		if err != nil {
			return 0, err
		}
		total += loss
	}
	return total / float64(len(examples)), nil
}

// #endregion evaluate
