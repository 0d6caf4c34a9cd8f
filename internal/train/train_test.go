package train

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
)

// #region helpers
func referenceGraph(t *testing.T) *tradegraph.Graph {
	t.Helper()
	p := indicator.NewStatic()
	for i, c := range tradegraph.ReferenceCountries {
		for k, code := range tradegraph.Indicators {
			p.Set(c.Code, code, float64((i+1)*(k+5))*250)
		}
	}
	g, _, err := tradegraph.Reference(context.Background(), p)
	if err != nil {
		t.Fatalf("reference graph: %v", err)
	}
	return g
}

func smallModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{InputDim: 15, Hidden: 8, Window: 5, NumNodes: 5, Focal: 0}, 3)
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	return m
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.Epochs = 3
	cfg.Scenarios = 4
	cfg.LearningRate = 0.01
	return cfg
}

// fixedSource replays the same examples every epoch.
type fixedSource struct {
	examples []Example
	err      error
}

func (f *fixedSource) Name() string { return "fixed" }

func (f *fixedSource) Epoch(context.Context, int) (Epoch, error) {
	if f.err != nil {
		return Epoch{}, f.err
	}
	return Epoch{Examples: f.examples}, nil
}

func fixedExamples() []Example {
	var out []Example
	for _, v := range []policy.Vector{policy.Neutral(), policy.Maximal(), {Severity: 0.5, Trade: 1, Binding: 1}} {
		out = append(out, Example{Policy: v, Targets: model.FullTargets(SimulateImpact(v)), Label: "fixed"})
	}
	return out
}

// #endregion helpers

// #region synthetic-tests
func TestSimulateImpactMaximal(t *testing.T) {
	p := SimulateImpact(policy.Maximal())
	want := map[string]float64{
		"gdp": 0.9, "cpi": 0.8, "fx": 0.8, "trade": 0.9,
		"fdi": 0.9, "res": 0.7, "score": 0.85, "duration": 1.0,
	}
	for k, v := range p.Map() {
		if math.Abs(v-want[k]) > 1e-12 {
			t.Errorf("%s: got %v, want %v", k, v, want[k])
		}
	}
}

func TestSimulateImpactNeutralIsZero(t *testing.T) {
	for k, v := range SimulateImpact(policy.Neutral()).Map() {
		if v != 0 {
			t.Errorf("%s: expected 0, got %v", k, v)
		}
	}
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	a, _ := NewSyntheticSource(9, 5).Epoch(context.Background(), 0)
	b, _ := NewSyntheticSource(9, 5).Epoch(context.Background(), 0)
	if len(a.Examples) != 5 {
		t.Fatalf("expected 5 examples, got %d", len(a.Examples))
	}
	for i := range a.Examples {
		if a.Examples[i].Policy != b.Examples[i].Policy {
			t.Fatalf("example %d differs for the same seed", i)
		}
		for _, present := range a.Examples[i].Targets.Present {
			if !present {
				t.Fatal("synthetic examples label every head")
			}
		}
	}
}

// #endregion synthetic-tests

// #region historical-tests
func TestHistoricalSourceScalesAndMasks(t *testing.T) {
	p := indicator.NewStatic()
	for y := 2014; y <= 2021; y++ {
		for m, code := range HistoricalIndicators {
			p.SetYear("IND", code, y, float64(y-2000)*float64(m+1))
		}
	}
	// one hole
	delete(p.Values, "IND/PA.NUS.FCRF/2016")

	src := NewHistoricalSource(p, "IND")
	if got := src.TargetYears(); len(got) != 8 || got[0] != 2013 || got[7] != 2020 {
		t.Fatalf("unexpected target years %v", got)
	}
	ep, err := src.Epoch(context.Background(), 0)
	if err != nil {
		t.Fatalf("Epoch: %v", err)
	}
	if len(ep.Examples) != 8 || ep.Lookups != 48 {
		t.Fatalf("expected 8 examples and 48 lookups, got %d and %d", len(ep.Examples), ep.Lookups)
	}
	if len(ep.Degrades) != 1 || ep.Degrades[0].Year != 2016 {
		t.Fatalf("expected one 2016 degrade, got %+v", ep.Degrades)
	}

	for _, ex := range ep.Examples {
		if ex.Policy != policy.Neutral() {
			t.Fatal("historical examples use the neutral policy")
		}
		if ex.Targets.Present[model.MetricScore] || ex.Targets.Present[model.MetricDuration] {
			t.Fatal("score and duration have no historical label")
		}
		for m := range HistoricalIndicators {
			v := ex.Targets.Values.Get(m)
			if v < 0 || v > 1 {
				t.Fatalf("%s label %v outside [0,1]", m, v)
			}
		}
	}
	first, last := ep.Examples[0].Targets.Values, ep.Examples[7].Targets.Values
	if first.GDP != 0 || last.GDP != 1 {
		t.Fatalf("gdp should scale from 0 to 1, got %v..%v", first.GDP, last.GDP)
	}
	if ep.Examples[2].Label != "2016" || ep.Examples[2].Targets.Values.FX != 0 {
		t.Fatalf("missing 2016 fx should be a zero label, got %+v", ep.Examples[2])
	}
}

func TestHistoricalSourceTooFewYears(t *testing.T) {
	src := &HistoricalSource{Provider: indicator.NewStatic(), Country: "IND", Years: []int{2019, 2020}, Window: 5}
	if _, err := src.Epoch(context.Background(), 0); err == nil {
		t.Fatal("expected error when no target year remains")
	}
}

// #endregion historical-tests

// #region optimizer-tests
func TestClipGradNorm(t *testing.T) {
	g := smallModel(t).Params().Clone()
	before := ClipGradNorm(g, 1)
	if before <= 1 {
		t.Skip("initial params already within norm")
	}
	if n := g.Norm(); math.Abs(n-1) > 1e-9 {
		t.Fatalf("expected clipped norm 1, got %v", n)
	}
}

func TestSGDStep(t *testing.T) {
	p := smallModel(t).Params().Clone()
	g := p.ZeroLike()
	g.Conv1.Bias[0] = 2
	before := p.Conv1.Bias[0]
	(&SGD{LR: 0.5}).Step(p, g)
	if p.Conv1.Bias[0] != before-1 {
		t.Fatalf("expected %v, got %v", before-1, p.Conv1.Bias[0])
	}
}

func TestAdamFirstStepMagnitude(t *testing.T) {
	p := smallModel(t).Params().Clone()
	g := p.ZeroLike()
	g.Heads.GDP.Bias[0] = 3
	before := p.Heads.GDP.Bias[0]
	(&Adam{LR: 0.01, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}).Step(p, g)
	// bias-corrected first step moves by ~lr in the sign of the gradient
	if d := before - p.Heads.GDP.Bias[0]; math.Abs(d-0.01) > 1e-6 {
		t.Fatalf("expected step ~0.01, got %v", d)
	}
	if p.Heads.GDP.Bias[0] == before {
		t.Fatal("adam did not move the parameter")
	}
}

// #endregion optimizer-tests

// #region fit-tests
func TestFitReducesLoss(t *testing.T) {
	g := referenceGraph(t)
	m := smallModel(t)
	cfg := quickConfig()
	cfg.Epochs = 40
	tr, err := New(cfg, g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := &fixedSource{examples: fixedExamples()}

	before, err := tr.Evaluate(m, src.examples)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	trained, report, err := tr.Fit(context.Background(), m, src)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	after, err := tr.Evaluate(trained, src.examples)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if after >= before {
		t.Fatalf("expected loss to drop, before %v after %v", before, after)
	}
	if report.Steps != 40*3 || len(report.EpochLoss) != 40 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !trained.Params().Finite() {
		t.Fatal("trained params not finite")
	}
}

func TestFitLeavesInputModelUntouched(t *testing.T) {
	g := referenceGraph(t)
	m := smallModel(t)
	snapshot := m.Params().Clone()
	tr, _ := New(quickConfig(), g)
	if _, _, err := tr.Fit(context.Background(), m, NewSyntheticSource(1, 4)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if m.Params().Conv1.Weight[0] != snapshot.Conv1.Weight[0] || m.Params().Heads.Score.Bias[0] != snapshot.Heads.Score.Bias[0] {
		t.Fatal("Fit wrote to the serving model")
	}
}

func TestFitSurvivesSourceFailure(t *testing.T) {
	tr, _ := New(quickConfig(), referenceGraph(t))
	_, report, err := tr.Fit(context.Background(), smallModel(t), &fixedSource{err: errors.New("upstream down")})
	if err != nil {
		t.Fatalf("source failure must not halt training: %v", err)
	}
	if report.FailedEpochs != 3 || report.Steps != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestFitOnFullyDefaultedLabels(t *testing.T) {
	tr, _ := New(quickConfig(), referenceGraph(t))
	var seen []logging.Degrade
	tr.OnDegrade = func(d logging.Degrade) { seen = append(seen, d) }

	src := NewHistoricalSource(indicator.NewStatic(), "IND")
	_, report, err := tr.Fit(context.Background(), smallModel(t), src)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if report.FailedEpochs != 3 {
		t.Fatalf("expected every epoch flagged, got %d", report.FailedEpochs)
	}
	if report.Steps != 3*8 {
		t.Fatalf("training should proceed on zero labels, got %d steps", report.Steps)
	}
	if report.DegradedLabels != 3*48 || len(seen) != 3*48 {
		t.Fatalf("expected %d degrades, got %d / %d", 3*48, report.DegradedLabels, len(seen))
	}
}

func TestFitHonoursCancellation(t *testing.T) {
	tr, _ := New(quickConfig(), referenceGraph(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := tr.Fit(ctx, smallModel(t), NewSyntheticSource(1, 4)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := quickConfig()
	cfg.Epochs = 0
	if _, err := New(cfg, referenceGraph(t)); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	cfg = quickConfig()
	cfg.Optimizer = "lbfgs"
	if _, err := New(cfg, referenceGraph(t)); err == nil {
		t.Fatal("expected error for unknown optimizer")
	}
}

// #endregion fit-tests
