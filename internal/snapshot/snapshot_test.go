package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
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
			p.Set(c.Code, code, float64((i+2)*(k+3))*500)
		}
	}
	g, _, err := tradegraph.Reference(context.Background(), p)
	if err != nil {
		t.Fatalf("reference graph: %v", err)
	}
	return g
}

func defaultOptions(mode Mode) Options {
	return Options{Window: 5, InputDim: tradegraph.FeatureWidth + policy.Width, Focal: 0, Mode: mode}
}

// #endregion helpers

// #region build-tests
func TestBuildBroadcast(t *testing.T) {
	g := referenceGraph(t)
	v := policy.Maximal()
	seq, err := Build(g, v, defaultOptions(Broadcast))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(seq) != 5 {
		t.Fatalf("expected 5 snapshots, got %d", len(seq))
	}
	pv := v.Values()
	for ti, s := range seq {
		if s.NumNodes() != g.NumNodes() {
			t.Fatalf("snapshot %d: %d nodes", ti, s.NumNodes())
		}
		if len(s.Edges) != len(g.Edges) {
			t.Fatalf("snapshot %d: edge count changed", ti)
		}
		for i, row := range s.Features {
			if len(row) != 15 {
				t.Fatalf("snapshot %d row %d width %d", ti, i, len(row))
			}
			for k := 0; k < tradegraph.FeatureWidth; k++ {
				if row[k] != g.Features[i][k] {
					t.Fatalf("static feature [%d][%d] altered", i, k)
				}
			}
			for k := 0; k < policy.Width; k++ {
				if row[tradegraph.FeatureWidth+k] != pv[k] {
					t.Fatalf("policy column %d missing on row %d", k, i)
				}
			}
		}
	}
}

func TestBuildFocalOnly(t *testing.T) {
	g := referenceGraph(t)
	seq, err := Build(g, policy.Maximal(), defaultOptions(FocalOnly))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, row := range seq[0].Features {
		for k := tradegraph.FeatureWidth; k < len(row); k++ {
			want := 0.0
			if i == 0 {
				want = 1
			}
			if row[k] != want {
				t.Fatalf("row %d col %d = %v, want %v", i, k, row[k], want)
			}
		}
	}
}

func TestBuildDoesNotMutateGraph(t *testing.T) {
	g := referenceGraph(t)
	before := make([][]float64, len(g.Features))
	for i, row := range g.Features {
		before[i] = append([]float64(nil), row...)
	}
	seq, err := Build(g, policy.Maximal(), defaultOptions(Broadcast))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	seq[0].Features[0][0] = 1e9
	seq[1].Features[2][3] = -1e9
	for i := range before {
		if len(g.Features[i]) != len(before[i]) {
			t.Fatalf("row %d width changed", i)
		}
		for k := range before[i] {
			if g.Features[i][k] != before[i][k] {
				t.Fatalf("cached graph mutated at [%d][%d]", i, k)
			}
		}
	}
	if seq[2].Features[0][0] == 1e9 {
		t.Fatal("snapshots share feature rows")
	}
}

// #endregion build-tests

// #region failure-tests
func TestBuildRejectsWindow(t *testing.T) {
	g := referenceGraph(t)
	for _, w := range []int{0, -1} {
		opts := defaultOptions(Broadcast)
		opts.Window = w
		_, err := Build(g, policy.Neutral(), opts)
		if !errors.Is(err, model.ErrConfig) {
			t.Fatalf("window %d: expected ErrConfig, got %v", w, err)
		}
	}
}

func TestBuildRejectsWidthMismatch(t *testing.T) {
	g := referenceGraph(t)
	opts := defaultOptions(Broadcast)
	opts.InputDim = 14
	_, err := Build(g, policy.Neutral(), opts)
	var de *model.DimensionError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DimensionError, got %v", err)
	}
	if de.Got != 15 || de.Want != 14 {
		t.Fatalf("unexpected error detail %+v", de)
	}
}

func TestBuildRejectsTinyGraphs(t *testing.T) {
	empty := &tradegraph.Graph{}
	if _, err := Build(empty, policy.Neutral(), defaultOptions(Broadcast)); !errors.Is(err, model.ErrShape) {
		t.Fatalf("0-node graph: expected ErrShape, got %v", err)
	}
	single := &tradegraph.Graph{
		Countries: tradegraph.ReferenceCountries[:1],
		Features:  [][]float64{make([]float64, tradegraph.FeatureWidth)},
	}
	if _, err := Build(single, policy.Neutral(), defaultOptions(Broadcast)); !errors.Is(err, model.ErrShape) {
		t.Fatalf("1-node graph: expected ErrShape, got %v", err)
	}
}

func TestBuildRejectsFocalOutOfRange(t *testing.T) {
	opts := defaultOptions(FocalOnly)
	opts.Focal = 7
	if _, err := Build(referenceGraph(t), policy.Neutral(), opts); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("focal"); err != nil || m != FocalOnly {
		t.Fatalf("focal: %v %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != Broadcast {
		t.Fatalf("empty: %v %v", m, err)
	}
	if _, err := ParseMode("sideways"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

// #endregion failure-tests

// #region locality-tests
// Non-focal embeddings stay put when only the focal policy changes, provided
// the focal node sends no messages.
func TestFocalOnlyLocality(t *testing.T) {
	g := referenceGraph(t)
	for i := range g.Edges {
		if g.Edges[i].Source == 0 {
			g.Edges[i].Weight = 0
		}
	}
	cfg := model.Config{InputDim: 15, Hidden: 16, Window: 5, NumNodes: g.NumNodes(), Focal: 0}
	m, err := model.New(cfg, 7)
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	opts := OptionsFor(cfg, FocalOnly)

	a, err := Build(g, policy.Neutral(), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(g, policy.Maximal(), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ea, err := m.Encode(a[0])
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	eb, err := m.Encode(b[0])
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 1; i < len(ea); i++ {
		for k := range ea[i] {
			if ea[i][k] != eb[i][k] {
				t.Fatalf("node %d embedding changed at %d", i, k)
			}
		}
	}
}

// With the focal node's outgoing trade intact its policy reaches its
// neighbours after one hop.
func TestFocalOnlyPropagatesAlongEdges(t *testing.T) {
	g := referenceGraph(t)
	cfg := model.Config{InputDim: 15, Hidden: 16, Window: 5, NumNodes: g.NumNodes(), Focal: 0}
	m, err := model.New(cfg, 7)
	if err != nil {
		t.Fatalf("model.New: %v", err)
	}
	opts := OptionsFor(cfg, FocalOnly)

	a, err := Build(g, policy.Neutral(), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(g, policy.Maximal(), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ea, err := m.Encode(a[0])
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	eb, err := m.Encode(b[0])
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 1; i < len(ea); i++ {
		for k := range ea[i] {
			if ea[i][k] != eb[i][k] {
				return
			}
		}
	}
	t.Fatal("no neighbour embedding reacted to the focal policy")
}

// #endregion locality-tests
