package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/danielpatrickdp/sanction-impact/internal/explain"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"github.com/danielpatrickdp/sanction-impact/internal/snapshot"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
	"golang.org/x/sync/errgroup"
)

// #region types
// Explainer turns one predicted value into prose.
type Explainer interface {
	Explain(ctx context.Context, req explain.Request) (string, error)
}

// ErrNoExplainer is returned by Explain when no Explainer was configured.
var ErrNoExplainer = errors.New("no explainer configured")

// Options configures an Engine.
type Options struct {
	Injection snapshot.Mode
	Explainer Explainer // optional
	Workers   int       // InferBatch concurrency, 0 = GOMAXPROCS
}

// #endregion types

// #region engine
// Engine is the serving context: a cached trade graph plus an immutable
// model. Inference only reads shared state, so any number of goroutines may
// call Infer concurrently. A retrained model is handed over with Swap.
type Engine struct {
	model atomic.Pointer[model.Model]
	graph *tradegraph.Graph
	opts  Options
}

// New checks that m fits g and returns an Engine serving m.
func New(m *model.Model, g *tradegraph.Graph, opts Options) (*Engine, error) {
	if m == nil || g == nil {
		return nil, fmt.Errorf("engine: model and graph are required")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := compatible(m.Config(), g); err != nil {
		return nil, err
	}
	e := &Engine{graph: g, opts: opts}
	e.model.Store(m)
	return e, nil
}

// compatible reports construction-time mismatches between model and graph.
func compatible(cfg model.Config, g *tradegraph.Graph) error {
	if cfg.NumNodes != g.NumNodes() {
		return &model.ConfigError{Field: "num_nodes", Value: cfg.NumNodes, Reason: fmt.Sprintf("trade graph has %d countries", g.NumNodes())}
	}
	if want := g.FeatureWidth() + policy.Width; cfg.InputDim != want {
		return &model.DimensionError{Got: want, Want: cfg.InputDim, Detail: "snapshot feature width vs encoder input"}
	}
	return nil
}

// Model returns the model currently serving.
func (e *Engine) Model() *model.Model { return e.model.Load() }

// Graph returns the cached trade graph. Callers must not modify it.
func (e *Engine) Graph() *tradegraph.Graph { return e.graph }

// Swap installs m for all subsequent calls. In-flight calls finish on the
// model they started with.
func (e *Engine) Swap(m *model.Model) error {
	if m == nil {
		return fmt.Errorf("swap: nil model")
	}
	if err := compatible(m.Config(), e.graph); err != nil {
		return fmt.Errorf("swap: %w", err)
	}
	e.model.Store(m)
	return nil
}

// #endregion engine

// #region infer
// Infer builds the window for v and returns the eight head outputs.
func (e *Engine) Infer(v policy.Vector) (model.PredictionSet, error) {
	m := e.model.Load()
	seq, err := snapshot.Build(e.graph, v, snapshot.OptionsFor(m.Config(), e.opts.Injection))
	if err != nil {
		return model.PredictionSet{}, err
	}
	return m.Forward(seq)
}

// InferBatch runs Infer for every policy concurrently. Results keep input
// order; the first error cancels the remaining work.
func (e *Engine) InferBatch(ctx context.Context, policies []policy.Vector) ([]model.PredictionSet, error) {
	out := make([]model.PredictionSet, len(policies))
	g, ctx := errgroup.WithContext(ctx)
	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i, v := range policies {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := e.Infer(v)
			if err != nil {
				return fmt.Errorf("policy %d: %w", i, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion infer

// #region explain
// Explain forwards one metric of pred, together with the policy and the
// focal country, to the configured Explainer. The returned text is not
// inspected.
func (e *Engine) Explain(ctx context.Context, metric model.Metric, pred model.PredictionSet, v policy.Vector) (string, error) {
	if e.opts.Explainer == nil {
		return "", ErrNoExplainer
	}
	focal := e.model.Load().Config().Focal
	return e.opts.Explainer.Explain(ctx, explain.Request{
		Metric: metric.String(),
		Value:  pred.Get(metric),
		Context: map[string]any{
			"country":         e.graph.Countries[focal].Name,
			"severity":        v.Severity,
			"financial":       v.Financial,
			"trade":           v.Trade,
			"technology":      v.Technology,
			"energy":          v.Energy,
			"issuer_strength": v.IssuerStrength,
			"binding":         v.Binding,
		},
	})
}

// #endregion explain
