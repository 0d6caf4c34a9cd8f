package indicator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// #region helpers
func newTestServer(t *testing.T, body string, status int) *WorldBank {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/country/IND/indicator/") {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	return NewWorldBank(cfg)
}

// #endregion helpers

// #region latest-tests
func TestLatestSkipsNulls(t *testing.T) {
	wb := newTestServer(t, `[{"page":1},[{"date":"2024","value":null},{"date":"2023","value":3.5}]]`, http.StatusOK)

	r := wb.Latest(context.Background(), "IND", "FP.CPI.TOTL.ZG")
	if r.IsDefaulted() {
		t.Fatalf("expected fetched reading, got %v", r)
	}
	if r.Value != 3.5 {
		t.Fatalf("expected 3.5, got %v", r.Value)
	}
}

func TestLatestAllNullDefaults(t *testing.T) {
	wb := newTestServer(t, `[{"page":1},[{"date":"2024","value":null}]]`, http.StatusOK)

	r := wb.Latest(context.Background(), "IND", "X")
	if !r.IsDefaulted() || r.Value != 0 {
		t.Fatalf("expected defaulted zero, got %v", r)
	}
}

func TestMalformedResponseDefaults(t *testing.T) {
	wb := newTestServer(t, `[{"message":[{"id":"120","value":"Invalid value"}]}]`, http.StatusOK)

	r := wb.Latest(context.Background(), "IND", "BAD")
	if !r.IsDefaulted() {
		t.Fatalf("expected defaulted reading, got %v", r)
	}
	if !strings.HasPrefix(r.Cause, "malformed response") {
		t.Fatalf("expected malformed cause, got %q", r.Cause)
	}
}

func TestMalformedCauseSurvivesForYear(t *testing.T) {
	for _, body := range []string{`{"bad":`, `[{"page":1},{"date":"2020"}]`} {
		wb := newTestServer(t, body, http.StatusOK)

		r := wb.ForYear(context.Background(), "IND", "X", 2020)
		if !r.IsDefaulted() || !strings.HasPrefix(r.Cause, "malformed response") {
			t.Fatalf("body %s: expected malformed cause, got %v", body, r)
		}
	}
}

func TestEmptyPageIsNotMalformed(t *testing.T) {
	wb := newTestServer(t, `[{"page":1,"total":0},null]`, http.StatusOK)

	r := wb.ForYear(context.Background(), "IND", "X", 2020)
	if r.Cause != "no value for 2020" {
		t.Fatalf("expected missing-value cause, got %q", r.Cause)
	}
}

func TestServerErrorDefaults(t *testing.T) {
	wb := newTestServer(t, "boom", http.StatusInternalServerError)

	r := wb.ForYear(context.Background(), "IND", "X", 2020)
	if !r.IsDefaulted() {
		t.Fatalf("expected defaulted reading, got %v", r)
	}
	if !strings.Contains(r.Cause, "500") {
		t.Errorf("cause should mention the status, got %q", r.Cause)
	}
}

func TestForYear(t *testing.T) {
	wb := newTestServer(t, `[{"page":1},[{"date":"2019","value":6.1}]]`, http.StatusOK)

	r := wb.ForYear(context.Background(), "IND", "NY.GDP.MKTP.KD.ZG", 2019)
	if r.IsDefaulted() || r.Value != 6.1 {
		t.Fatalf("expected fetched 6.1, got %v", r)
	}
}

// #endregion latest-tests

// #region static-tests
func TestStaticProvider(t *testing.T) {
	s := NewStatic()
	s.Set("IND", "A", 2)
	s.SetYear("IND", "A", 2010, 4)

	if r := s.Latest(context.Background(), "IND", "A"); r.Value != 2 || r.IsDefaulted() {
		t.Errorf("unexpected latest %v", r)
	}
	if r := s.ForYear(context.Background(), "IND", "A", 2010); r.Value != 4 {
		t.Errorf("unexpected year value %v", r)
	}
	if r := s.Latest(context.Background(), "USA", "A"); !r.IsDefaulted() {
		t.Errorf("missing key should default, got %v", r)
	}
}

// #endregion static-tests
