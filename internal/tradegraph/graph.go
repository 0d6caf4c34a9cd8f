package tradegraph

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
)

// #region countries
// Country is one node of the trade network.
type Country struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"code" yaml:"code"`
}

// ReferenceCountries is the fixed node set, focal country first.
var ReferenceCountries = []Country{
	{Name: "India", Code: "IND"},
	{Name: "USA", Code: "USA"},
	{Name: "China", Code: "CHN"},
	{Name: "Russia", Code: "RUS"},
	{Name: "Germany", Code: "DEU"},
}

// Indicators are the static node features, in column order: GDP, exports,
// imports, inflation, reserves, FDI, energy use, population.
var Indicators = []string{
	"NY.GDP.MKTP.CD",
	"NE.EXP.GNFS.ZS",
	"NE.IMP.GNFS.ZS",
	"FP.CPI.TOTL.ZG",
	"FI.RES.TOTL.CD",
	"BX.KLT.DINV.CD.WD",
	"EG.USE.PCAP.KG.OE",
	"SP.POP.TOTL",
}

// FeatureWidth is the static feature width E.
const FeatureWidth = 8

// ReferenceTradeMatrix holds bilateral trade magnitudes between
// ReferenceCountries, row = exporter, column = importer.
var ReferenceTradeMatrix = [][]float64{
	{0, 80, 120, 30, 60},
	{70, 0, 200, 40, 150},
	{110, 180, 0, 90, 160},
	{35, 45, 100, 0, 80},
	{65, 140, 170, 85, 0},
}

// TradeScale maps raw trade magnitudes into roughly [0,1].
const TradeScale = 200.0

// epsilon guards standardization against constant columns.
const epsilon = 1e-6

// #endregion countries

// #region types
// Edge is a directed weighted trade link between node indices.
type Edge struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Weight float64 `json:"weight"`
}

// Graph is the cached static trade network: standardized node features and
// a fixed weighted topology.
type Graph struct {
	Countries []Country
	Features  [][]float64 // [len(Countries)][FeatureWidth]
	Edges     []Edge
}

// Report summarizes data quality for one Build. Degrades are node
// features, so their Year is left unset.
type Report struct {
	Fetched  int               `json:"fetched"`
	Degrades []logging.Degrade `json:"degrades"`
}

// #endregion types

// #region accessors
// NumNodes returns the country count.
func (g *Graph) NumNodes() int { return len(g.Countries) }

// FeatureWidth returns the static feature width, or 0 for an empty graph.
func (g *Graph) FeatureWidth() int {
	if len(g.Features) == 0 {
		return 0
	}
	return len(g.Features[0])
}

// IndexOf returns the node index of a country code.
func (g *Graph) IndexOf(code string) (int, bool) {
	for i, c := range g.Countries {
		if c.Code == code {
			return i, true
		}
	}
	return 0, false
}

// ModelEdges converts the topology to encoder edges.
func (g *Graph) ModelEdges() []model.Edge {
	out := make([]model.Edge, len(g.Edges))
	for i, e := range g.Edges {
		out[i] = model.Edge{Src: e.Source, Dst: e.Target, Weight: e.Weight}
	}
	return out
}

// Validate checks the structural invariants: at least two nodes, one
// feature row of equal width per node, in-range edges, no self edges and
// non-negative weights.
func (g *Graph) Validate() error {
	n := g.NumNodes()
	if n < 2 {
		return &model.ShapeError{Op: "validate graph", Node: n, NumNodes: n, Detail: "trade graph needs at least 2 countries"}
	}
	if len(g.Features) != n {
		return &model.ShapeError{Op: "validate graph", Node: len(g.Features), NumNodes: n, Detail: "feature rows differ from country count"}
	}
	width := len(g.Features[0])
	for i, row := range g.Features {
		if len(row) != width {
			return &model.DimensionError{Got: len(row), Want: width, Detail: fmt.Sprintf("country %s feature width", g.Countries[i].Code)}
		}
	}
	for _, e := range g.Edges {
		switch {
		case e.Source < 0 || e.Source >= n:
			return &model.ShapeError{Op: "validate graph", Node: e.Source, NumNodes: n, Detail: "edge source out of range"}
		case e.Target < 0 || e.Target >= n:
			return &model.ShapeError{Op: "validate graph", Node: e.Target, NumNodes: n, Detail: "edge target out of range"}
		case e.Source == e.Target:
			return &model.ShapeError{Op: "validate graph", Node: e.Source, NumNodes: n, Detail: "self edge"}
		case e.Weight < 0 || math.IsNaN(e.Weight):
			return &model.ShapeError{Op: "validate graph", Node: e.Source, NumNodes: n, Detail: fmt.Sprintf("edge weight %v", e.Weight)}
		}
	}
	return nil
}

// #endregion accessors

// #region edges
// EdgesFromMatrix emits one edge per positive off-diagonal entry, weighted by
// entry/scale.
func EdgesFromMatrix(matrix [][]float64, scale float64) ([]Edge, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("trade scale must be positive, got %v", scale)
	}
	n := len(matrix)
	var edges []Edge
	for i, row := range matrix {
		if len(row) != n {
			return nil, &model.DimensionError{Got: len(row), Want: n, Detail: fmt.Sprintf("trade matrix row %d", i)}
		}
		for j, v := range row {
			if i == j || v <= 0 {
				continue
			}
			edges = append(edges, Edge{Source: i, Target: j, Weight: v / scale})
		}
	}
	return edges, nil
}

// #endregion edges

// #region standardize
// Standardize applies log1p(|x|) and then scales every column to zero mean
// and unit variance, dividing by (sample std + epsilon).
func Standardize(raw [][]float64) [][]float64 {
	n := len(raw)
	if n == 0 {
		return nil
	}
	width := len(raw[0])
	out := make([][]float64, n)
	for i, row := range raw {
		out[i] = make([]float64, width)
		for k, v := range row {
			out[i][k] = math.Log1p(math.Abs(v))
		}
	}

	for k := 0; k < width; k++ {
		var mean float64
		for i := range out {
			mean += out[i][k]
		}
		mean /= float64(n)

		var ss float64
		for i := range out {
			d := out[i][k] - mean
			ss += d * d
		}
		std := 0.0
		if n > 1 {
			std = math.Sqrt(ss / float64(n-1))
		}
		for i := range out {
			out[i][k] = (out[i][k] - mean) / (std + epsilon)
		}
	}
	return out
}

// #endregion standardize

// #region build
// Build fetches the static indicators for every country, zero-fills
// unavailable readings, standardizes the feature matrix and derives the
// edges from the trade matrix. Every substitution is logged and reported.
func Build(ctx context.Context, p indicator.Provider, countries []Country, matrix [][]float64) (*Graph, Report, error) {
	if len(matrix) != len(countries) {
		return nil, Report{}, &model.DimensionError{Got: len(matrix), Want: len(countries), Detail: "trade matrix rows"}
	}

	var report Report
	raw := make([][]float64, len(countries))
	for i, c := range countries {
		raw[i] = make([]float64, len(Indicators))
		for k, code := range Indicators {
			r := p.Latest(ctx, c.Code, code)
			if r.IsDefaulted() {
				log.Printf("indicator %s/%s defaulted to 0: %s", c.Code, code, r.Cause)
				report.Degrades = append(report.Degrades, logging.Degrade{Country: c.Code, Indicator: code, Cause: r.Cause})
				continue
			}
			raw[i][k] = r.Value
			report.Fetched++
		}
	}

	edges, err := EdgesFromMatrix(matrix, TradeScale)
	if err != nil {
		return nil, report, err
	}

	g := &Graph{
		Countries: append([]Country(nil), countries...),
		Features:  Standardize(raw),
		Edges:     edges,
	}
	if err := g.Validate(); err != nil {
		return nil, report, err
	}
	return g, report, nil
}

// Reference builds the reference network from p.
func Reference(ctx context.Context, p indicator.Provider) (*Graph, Report, error) {
	return Build(ctx, p, ReferenceCountries, ReferenceTradeMatrix)
}

// #endregion build
