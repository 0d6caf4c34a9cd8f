package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/danielpatrickdp/sanction-impact/internal/config"
	"github.com/danielpatrickdp/sanction-impact/internal/engine"
	"github.com/danielpatrickdp/sanction-impact/internal/eval"
	"github.com/danielpatrickdp/sanction-impact/internal/gate"
	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/paramstore"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
	"github.com/danielpatrickdp/sanction-impact/internal/train"
	"github.com/google/uuid"
)

// #region main
func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	source := flag.String("source", "", "label source: synthetic | historical (default from config)")
	holdoutSeed := flag.Int64("holdout-seed", 4242, "seed of the synthetic holdout set")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *source != "" {
		cfg.Train.Source = *source
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	tc, err := cfg.TrainConfig()
	if err != nil {
		log.Fatalf("invalid training schedule: %v", err)
	}

	store, err := paramstore.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	g, err := loadGraph(store)
	if err != nil {
		log.Fatalf("%v", err)
	}
	mc, err := cfg.ModelConfig(g)
	if err != nil {
		log.Fatalf("model config: %v", err)
	}

	current, err := store.GetCurrent()
	if errors.Is(err, paramstore.ErrNoActive) {
		log.Println("No active parameters found, creating initial version...")
		m, merr := model.New(mc, tc.Seed)
		if merr != nil {
			log.Fatalf("init model: %v", merr)
		}
		current, err = store.CreateInitial(m)
	}
	if err != nil {
		log.Fatalf("failed to load active parameters: %v", err)
	}
	if current.Model.Config() != mc {
		log.Fatalf("active version %s has shape %+v, config asks for %+v",
			current.VersionID, current.Model.Config(), mc)
	}

	fmt.Println("=== Sanction Impact Training ===")
	fmt.Printf("  DB: %s | Source: %s | Epochs: %d | Optimizer: %s (lr %g)\n",
		cfg.DBPath, cfg.Train.Source, tc.Epochs, tc.Optimizer, tc.LearningRate)
	fmt.Printf("  Parent: %s | Injection: %s\n", current.VersionID, tc.Injection)

	trainer, err := train.New(tc, g)
	if err != nil {
		log.Fatalf("trainer: %v", err)
	}
	trainer.OnDegrade = func(d logging.Degrade) {
		if err := logging.LogDegrade(store.DB(), "", d); err != nil {
			log.Printf("logging error: %v", err)
		}
	}

	src, holdout := sources(cfg, tc, mc, *holdoutSeed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	trained, report, err := trainer.Fit(ctx, current.Model, src)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	fmt.Printf("\nTrained %d steps in %s, final loss %.6f\n",
		report.Steps, time.Since(start).Round(time.Millisecond), report.FinalLoss)

	// Holdout losses for the gate
	hep, err := holdout.Epoch(ctx, 0)
	if err != nil {
		log.Fatalf("holdout: %v", err)
	}
	baseline, err := trainer.Evaluate(current.Model, hep.Examples)
	if err != nil {
		log.Fatalf("evaluate active: %v", err)
	}
	candidate, err := trainer.Evaluate(trained, hep.Examples)
	if err != nil {
		log.Fatalf("evaluate candidate: %v", err)
	}

	// Probes against the candidate as it would be served
	eng, err := engine.New(trained, g, engine.Options{Injection: tc.Injection})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	norm := trained.Params().Norm()
	probe := eval.NewEvalHarness(eval.DefaultEvalConfig()).Run(eng, norm)

	decision := gate.NewGate(gate.DefaultGateConfig()).Evaluate(gate.Candidate{
		Active:        current.Model.Params(),
		Proposed:      trained.Params(),
		BaselineLoss:  baseline,
		CandidateLoss: candidate,
		HasBaseline:   len(hep.Examples) > 0,
		Report:        report,
		Probe:         probe,
	})

	metricsJSON, _ := json.Marshal(probe.Metrics)
	rec := paramstore.ParamRecord{
		ParentID:    current.VersionID,
		Model:       trained,
		MetricsJSON: string(metricsJSON),
	}
	if decision.Action == "commit" {
		rec, err = store.Commit(rec)
	} else {
		rec, err = store.Stage(rec)
	}
	if err != nil {
		log.Fatalf("store version: %v", err)
	}

	err = logging.LogTraining(store.DB(), rec.VersionID, logging.TrainRecord{
		RunID:          uuid.New().String(),
		Source:         report.Source,
		Epochs:         tc.Epochs,
		Steps:          report.Steps,
		Optimizer:      tc.Optimizer,
		LearningRate:   tc.LearningRate,
		EpochLoss:      report.EpochLoss,
		FinalLoss:      candidate,
		BaselineLoss:   baseline,
		DegradedLabels: report.DegradedLabels,
		FailedEpochs:   report.FailedEpochs,
		ParamNorm:      norm,
		ProbesPassed:   probe.Passed,
		ProbeFailures:  probe.Failures(),
		GateAction:     decision.Action,
		GateReason:     decision.Reason,
	})
	if err != nil {
		log.Printf("logging error: %v", err)
	}

	fmt.Printf("\n=== Gate ===\n")
	fmt.Printf("  Holdout loss: %.6f -> %.6f\n", baseline, candidate)
	fmt.Printf("  Probes: passed=%v %v\n", probe.Passed, probe.Failures())
	fmt.Printf("  Decision: %s (soft score %.2f)\n", decision.Action, decision.SoftScore)
	fmt.Printf("  Reason: %s\n", decision.Reason)
	fmt.Printf("  Version: %s\n", rec.VersionID)
	if report.DegradedLabels > 0 || report.FailedEpochs > 0 {
		fmt.Printf("  Data quality: %d zero-filled labels, %d failed epochs\n",
			report.DegradedLabels, report.FailedEpochs)
	}
}

// #endregion main

// #region helpers
func loadGraph(store *paramstore.Store) (*tradegraph.Graph, error) {
	graphStore, err := tradegraph.NewStore(store.DB())
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}
	g, err := graphStore.Load()
	if errors.Is(err, tradegraph.ErrNoGraph) {
		return nil, fmt.Errorf("no cached trade graph, run bootstrap-graph first")
	}
	return g, err
}

// sources returns the training source and a holdout drawn independently of
// it. The historical source is deterministic, so it is its own holdout.
func sources(cfg config.Config, tc train.Config, mc model.Config, holdoutSeed int64) (train.LabelSource, train.LabelSource) {
	if cfg.Train.Source == "historical" {
		hs := train.NewHistoricalSource(indicator.NewCache(indicator.NewWorldBank(cfg.IndicatorConfig())), cfg.Model.Focal)
		hs.Window = mc.Window
		return hs, hs
	}
	return train.NewSyntheticSource(tc.Seed, tc.Scenarios), train.NewSyntheticSource(holdoutSeed, tc.Scenarios)
}

// #endregion helpers
