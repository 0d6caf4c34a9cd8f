package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/sanction-impact/internal/policy"
)

// #region fixture-tests

// TestFixture_SyntheticLabels replays the checked-in fixture against the
// closed-form label function; every scenario must match.
func TestFixture_SyntheticLabels(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "synthetic_labels.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	scenarios, err := f.ToScenarios()
	if err != nil {
		t.Fatalf("ToScenarios: %v", err)
	}
	results := Replay(labelPredictor{}, scenarios, f.ToReplayConfig())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Action != "match" {
			t.Errorf("scenario %s: expected match, got %s (%s)", r.ScenarioID, r.Action, r.Reason)
		}
	}
}

// TestFixture_YAML loads the YAML variant, including a record-only scenario.
func TestFixture_YAML(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "synthetic_labels.yaml"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	scenarios, err := f.ToScenarios()
	if err != nil {
		t.Fatalf("ToScenarios: %v", err)
	}
	s := Summarize(Replay(labelPredictor{}, scenarios, f.ToReplayConfig()))
	if s.Matches != 1 || s.Recorded != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	// derived severity for the record-only scenario
	if got := scenarios[1].Policy.Severity; got < 0.449 || got > 0.451 {
		t.Fatalf("expected derived severity 0.45, got %v", got)
	}
}

// TestRecordAndReload exports a golden fixture and replays it.
func TestRecordAndReload(t *testing.T) {
	f := &Fixture{
		Description: "golden",
		Scenarios: []FixtureScenario{
			{ID: "a", Policy: policy.Request{Trade: 1, Energy: 1}},
			{ID: "b", Policy: policy.Request{Financial: 1, Binding: 1, IssuerStrength: 0.5}},
		},
	}
	scenarios, err := f.ToScenarios()
	if err != nil {
		t.Fatalf("ToScenarios: %v", err)
	}
	if err := Record(f, Replay(labelPredictor{}, scenarios, DefaultReplayConfig())); err != nil {
		t.Fatalf("Record: %v", err)
	}

	for _, name := range []string{"golden.json", "golden.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		if err := WriteFixture(path, f); err != nil {
			t.Fatalf("WriteFixture %s: %v", name, err)
		}
		loaded, err := LoadFixture(path)
		if err != nil {
			t.Fatalf("LoadFixture %s: %v", name, err)
		}
		again, err := loaded.ToScenarios()
		if err != nil {
			t.Fatalf("ToScenarios %s: %v", name, err)
		}
		s := Summarize(Replay(labelPredictor{}, again, loaded.ToReplayConfig()))
		if s.Matches != 2 {
			t.Fatalf("%s: expected 2 matches, got %+v", name, s)
		}
	}
}

// TestFixture_UnknownMetric rejects misspelled heads.
func TestFixture_UnknownMetric(t *testing.T) {
	fs := FixtureScenario{ID: "x", Expected: map[string]float64{"gpd": 0.1}}
	if _, err := fs.ToScenario(); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	if _, err := LoadFixture("testdata/nonexistent.json"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// #endregion fixture-tests
