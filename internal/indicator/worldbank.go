package indicator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// #region config
// Config holds World Bank API parameters.
type Config struct {
	BaseURL string
	Timeout time.Duration
	PerPage int
}

// DefaultConfig returns default provider configuration.
// Reads from env vars: INDICATOR_BASE_URL, INDICATOR_TIMEOUT, INDICATOR_PER_PAGE.
func DefaultConfig() Config {
	cfg := Config{
		BaseURL: "https://api.worldbank.org/v2",
		Timeout: 15 * time.Second,
		PerPage: 500,
	}
	if v := os.Getenv("INDICATOR_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("INDICATOR_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Timeout = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("INDICATOR_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PerPage = n
		}
	}
	return cfg
}

// #endregion config

// #region client
// WorldBank fetches indicators from the World Bank v2 JSON API.
type WorldBank struct {
	cfg    Config
	client *http.Client
}

// NewWorldBank creates a provider with its own HTTP client.
func NewWorldBank(cfg Config) *WorldBank {
	return &WorldBank{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type observation struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Latest returns the first non-null entry of the series. The API orders
// entries newest first.
func (w *WorldBank) Latest(ctx context.Context, country, indicator string) Reading {
	url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&per_page=%d", w.cfg.BaseURL, country, indicator, w.cfg.PerPage)
	series, err := w.fetch(ctx, url)
	if err != nil {
		return Defaulted(err.Error())
	}
	for _, o := range series {
		if o.Value != nil {
			return Fetched(*o.Value)
		}
	}
	return Defaulted("no non-null observation")
}

// ForYear returns the single observation for year.
func (w *WorldBank) ForYear(ctx context.Context, country, indicator string, year int) Reading {
	url := fmt.Sprintf("%s/country/%s/indicator/%s?date=%d:%d&format=json", w.cfg.BaseURL, country, indicator, year, year)
	series, err := w.fetch(ctx, url)
	if err != nil {
		return Defaulted(err.Error())
	}
	if len(series) == 0 || series[0].Value == nil {
		return Defaulted(fmt.Sprintf("no value for %d", year))
	}
	return Fetched(*series[0].Value)
}

// fetch returns the observation list. A response that is not the expected
// [meta, [observations]] pair is reported as malformed; a null page is an
// empty series.
func (w *WorldBank) fetch(ctx context.Context, url string) ([]observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if len(envelope) < 2 {
		return nil, fmt.Errorf("malformed response: %d element envelope", len(envelope))
	}
	var series []observation
	if err := json.Unmarshal(envelope[1], &series); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	return series, nil
}

// #endregion client
