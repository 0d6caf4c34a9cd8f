package snapshot

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
)

// #region mode
// Mode selects which rows receive the policy columns.
type Mode int

const (
	// Broadcast appends the policy to every node row.
	Broadcast Mode = iota
	// FocalOnly writes the policy into the focal row and zero-fills the
	// policy columns of every other row.
	FocalOnly
)

func (m Mode) String() string {
	if m == FocalOnly {
		return "focal"
	}
	return "broadcast"
}

// ParseMode accepts "broadcast" or "focal".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "broadcast":
		return Broadcast, nil
	case "focal", "focal_only", "focal-only":
		return FocalOnly, nil
	}
	return Broadcast, fmt.Errorf("unknown injection mode %q", s)
}

// #endregion mode

// #region options
// Options fixes the shape of every sequence a Builder emits.
type Options struct {
	Window   int
	InputDim int
	Focal    int
	Mode     Mode
}

// OptionsFor derives builder options from a model configuration.
func OptionsFor(cfg model.Config, mode Mode) Options {
	return Options{Window: cfg.Window, InputDim: cfg.InputDim, Focal: cfg.Focal, Mode: mode}
}

// #endregion options

// #region build
// Build produces opts.Window snapshots of g with v injected. Every snapshot
// owns its feature matrix; g is never modified. The edge slice is shared
// across the sequence and must be treated as read-only.
func Build(g *tradegraph.Graph, v policy.Vector, opts Options) ([]model.Snapshot, error) {
	if opts.Window <= 0 {
		return nil, &model.ConfigError{Field: "window", Value: opts.Window, Reason: "must be positive"}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	n := g.NumNodes()
	if opts.Focal < 0 || opts.Focal >= n {
		return nil, &model.ConfigError{Field: "focal", Value: opts.Focal, Reason: "unknown focal node index"}
	}
	width := g.FeatureWidth()
	if width+policy.Width != opts.InputDim {
		return nil, &model.DimensionError{
			Got:    width + policy.Width,
			Want:   opts.InputDim,
			Detail: fmt.Sprintf("static width %d + policy width %d", width, policy.Width),
		}
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	edges := g.ModelEdges()
	pv := v.Values()
	seq := make([]model.Snapshot, opts.Window)
	for t := range seq {
		features := make([][]float64, n)
		for i, row := range g.Features {
			out := make([]float64, opts.InputDim)
			copy(out, row)
			if opts.Mode == Broadcast || i == opts.Focal {
				copy(out[width:], pv[:])
			}
			features[i] = out
		}
		seq[t] = model.Snapshot{Features: features, Edges: edges}
	}
	return seq, nil
}

// #endregion build
