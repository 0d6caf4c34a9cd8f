package tradegraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func fullProvider() *indicator.Static {
	p := indicator.NewStatic()
	for i, c := range ReferenceCountries {
		for k, code := range Indicators {
			p.Set(c.Code, code, float64((i+1)*(k+2))*1000)
		}
	}
	return p
}

// #endregion helpers

// #region edges-tests
func TestEdgesFromReferenceMatrix(t *testing.T) {
	edges, err := EdgesFromMatrix(ReferenceTradeMatrix, TradeScale)
	if err != nil {
		t.Fatalf("EdgesFromMatrix: %v", err)
	}
	if len(edges) != 20 {
		t.Fatalf("expected 20 edges, got %d", len(edges))
	}
	for _, e := range edges {
		if e.Source == e.Target {
			t.Fatalf("self edge %+v", e)
		}
		if e.Weight <= 0 || e.Weight > 1 {
			t.Fatalf("weight out of range: %+v", e)
		}
	}
	// USA -> China is the heaviest link
	for _, e := range edges {
		if e.Source == 1 && e.Target == 2 && e.Weight != 1 {
			t.Fatalf("expected USA->CHN weight 1, got %v", e.Weight)
		}
	}
}

func TestEdgesSkipZeroEntries(t *testing.T) {
	edges, err := EdgesFromMatrix([][]float64{{0, 0}, {10, 0}}, 10)
	if err != nil {
		t.Fatalf("EdgesFromMatrix: %v", err)
	}
	if len(edges) != 1 || edges[0].Source != 1 || edges[0].Target != 0 || edges[0].Weight != 1 {
		t.Fatalf("unexpected edges %+v", edges)
	}
}

// #endregion edges-tests

// #region standardize-tests
func TestStandardizeZeroMeanUnitVariance(t *testing.T) {
	raw := [][]float64{{1e12, 5}, {3e12, 7}, {2e9, -9}, {8e10, 1}}
	out := Standardize(raw)
	for k := 0; k < 2; k++ {
		var mean, ss float64
		for i := range out {
			mean += out[i][k]
		}
		mean /= float64(len(out))
		for i := range out {
			ss += (out[i][k] - mean) * (out[i][k] - mean)
		}
		std := math.Sqrt(ss / float64(len(out)-1))
		if math.Abs(mean) > 1e-9 {
			t.Errorf("column %d mean %v", k, mean)
		}
		if math.Abs(std-1) > 1e-4 {
			t.Errorf("column %d std %v", k, std)
		}
	}
}

func TestStandardizeConstantColumnIsFinite(t *testing.T) {
	out := Standardize([][]float64{{4, 0}, {4, 0}, {4, 0}})
	for _, row := range out {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v != 0 {
				t.Fatalf("constant column should standardize to 0, got %v", v)
			}
		}
	}
}

// #endregion standardize-tests

// #region build-tests
func TestBuildReference(t *testing.T) {
	g, report, err := Reference(context.Background(), fullProvider())
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if g.NumNodes() != 5 || g.FeatureWidth() != FeatureWidth {
		t.Fatalf("unexpected shape %d x %d", g.NumNodes(), g.FeatureWidth())
	}
	if len(report.Degrades) != 0 || report.Fetched != 40 {
		t.Fatalf("unexpected report %+v", report)
	}
	if idx, ok := g.IndexOf("IND"); !ok || idx != 0 {
		t.Fatalf("IND should be node 0, got %d %v", idx, ok)
	}
}

func TestBuildZeroFillsMissingIndicators(t *testing.T) {
	p := fullProvider()
	delete(p.Values, "RUS/SP.POP.TOTL")
	delete(p.Values, "DEU/FP.CPI.TOTL.ZG")

	g, report, err := Reference(context.Background(), p)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if len(report.Degrades) != 2 {
		t.Fatalf("expected 2 degrades, got %+v", report.Degrades)
	}
	if report.Degrades[0].Country != "RUS" || report.Degrades[0].Indicator != "SP.POP.TOTL" {
		t.Errorf("degrade not attributable: %+v", report.Degrades[0])
	}
	if report.Degrades[0].Year != 0 {
		t.Errorf("node feature degrade should carry no year, got %d", report.Degrades[0].Year)
	}
	raw, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if !strings.Contains(string(raw), `"country":"RUS","indicator":"SP.POP.TOTL","cause":`) {
		t.Errorf("report should serialize degrades in training_log form, got %s", raw)
	}
	for _, row := range g.Features {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatal("features must stay finite after zero fill")
			}
		}
	}
}

func TestBuildRejectsTinyGraphs(t *testing.T) {
	p := fullProvider()
	_, _, err := Build(context.Background(), p, nil, nil)
	if !errors.Is(err, model.ErrShape) {
		t.Fatalf("0-node graph: expected ErrShape, got %v", err)
	}
	_, _, err = Build(context.Background(), p, ReferenceCountries[:1], [][]float64{{0}})
	if !errors.Is(err, model.ErrShape) {
		t.Fatalf("1-node graph: expected ErrShape, got %v", err)
	}
}

func TestValidateRejectsBadEdges(t *testing.T) {
	g, _, _ := Reference(context.Background(), fullProvider())
	g.Edges = append(g.Edges, Edge{Source: 0, Target: 9, Weight: 0.1})
	if err := g.Validate(); !errors.Is(err, model.ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

// #endregion build-tests

// #region store-tests
func TestStoreRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNoGraph) {
		t.Fatalf("expected ErrNoGraph on empty store, got %v", err)
	}

	g, _, _ := Reference(context.Background(), fullProvider())
	if err := s.Save(g); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// saving twice replaces rather than duplicates
	if err := s.Save(g); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NumNodes() != g.NumNodes() || len(loaded.Edges) != len(g.Edges) {
		t.Fatalf("shape mismatch: %d/%d nodes, %d/%d edges",
			loaded.NumNodes(), g.NumNodes(), len(loaded.Edges), len(g.Edges))
	}
	for i := range g.Features {
		for k := range g.Features[i] {
			if loaded.Features[i][k] != g.Features[i][k] {
				t.Fatalf("feature [%d][%d] changed: %v vs %v", i, k, loaded.Features[i][k], g.Features[i][k])
			}
		}
	}
}

// #endregion store-tests
