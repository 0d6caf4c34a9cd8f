package train

import (
	"context"
	"fmt"
	"strconv"

	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
)

// #region targets
// HistoricalIndicators maps the heads that have a real-world series to the
// indicator used as their next-year label. Score and duration have none.
var HistoricalIndicators = map[model.Metric]string{
	model.MetricGDP:   "NY.GDP.MKTP.KD.ZG",
	model.MetricCPI:   "FP.CPI.TOTL.ZG",
	model.MetricFX:    "PA.NUS.FCRF",
	model.MetricTrade: "NE.TRD.GNFS.ZS",
	model.MetricFDI:   "BX.KLT.DINV.CD.WD",
	model.MetricRes:   "FI.RES.TOTL.CD",
}

// DefaultYears is the historical training span.
func DefaultYears() []int {
	years := make([]int, 0, 14)
	for y := 2008; y <= 2021; y++ {
		years = append(years, y)
	}
	return years
}

// #endregion targets

// #region historical-source
// HistoricalSource labels a neutral policy with the focal country's
// indicator values for the year after each training window.
type HistoricalSource struct {
	Provider indicator.Provider
	Country  string
	Years    []int
	Window   int
}

// NewHistoricalSource uses DefaultYears and the default window.
func NewHistoricalSource(p indicator.Provider, country string) *HistoricalSource {
	return &HistoricalSource{Provider: p, Country: country, Years: DefaultYears(), Window: model.DefaultWindow}
}

func (h *HistoricalSource) Name() string { return "historical" }

// TargetYears returns the years whose successor supplies a label.
func (h *HistoricalSource) TargetYears() []int {
	var out []int
	for i := h.Window; i < len(h.Years)-1; i++ {
		out = append(out, h.Years[i])
	}
	return out
}

// Epoch fetches every label for the epoch. A missing reading becomes a zero
// label and a Degrade; the remaining values of each head are min-max scaled
// into [0,1] across the epoch.
func (h *HistoricalSource) Epoch(ctx context.Context, _ int) (Epoch, error) {
	years := h.TargetYears()
	if len(years) == 0 {
		return Epoch{}, fmt.Errorf("historical source: %d years leave no target after window %d", len(h.Years), h.Window)
	}

	type cell struct {
		value float64
		ok    bool
	}
	raw := make([][model.NumMetrics]cell, len(years))
	var ep Epoch

	for k, year := range years {
		labelYear := year + 1
		for _, m := range model.Metrics {
			code, ok := HistoricalIndicators[m]
			if !ok {
				continue
			}
			if err := ctx.Err(); err != nil {
				return Epoch{}, err
			}
			ep.Lookups++
			r := h.Provider.ForYear(ctx, h.Country, code, labelYear)
			if r.IsDefaulted() {
				ep.Degrades = append(ep.Degrades, logging.Degrade{
					Country: h.Country, Indicator: code, Year: labelYear, Cause: r.Cause,
				})
				continue
			}
			raw[k][m] = cell{value: r.Value, ok: true}
		}
	}

	targets := make([]model.Targets, len(years))
	for _, m := range model.Metrics {
		if _, ok := HistoricalIndicators[m]; !ok {
			continue
		}
		lo, hi, seen := 0.0, 0.0, false
		for k := range years {
			c := raw[k][m]
			if !c.ok {
				continue
			}
			if !seen || c.value < lo {
				lo = c.value
			}
			if !seen || c.value > hi {
				hi = c.value
			}
			seen = true
		}
		for k := range years {
			targets[k].Present[m] = true
			c := raw[k][m]
			if !c.ok || hi == lo {
				continue
			}
			targets[k].Values.Set(m, (c.value-lo)/(hi-lo))
		}
	}

	for k, year := range years {
		ep.Examples = append(ep.Examples, Example{
			Policy:  policy.Neutral(),
			Targets: targets[k],
			Label:   strconv.Itoa(year + 1),
		})
	}
	return ep, nil
}

// #endregion historical-source
