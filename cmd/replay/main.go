package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/sanction-impact/internal/config"
	"github.com/danielpatrickdp/sanction-impact/internal/engine"
	"github.com/danielpatrickdp/sanction-impact/internal/paramstore"
	"github.com/danielpatrickdp/sanction-impact/internal/replay"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
)

// #region main

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	fixturePath := flag.String("fixture", "", "path to fixture JSON or YAML")
	version := flag.String("version", "", "replay against this version instead of the active one")
	tolerance := flag.Float64("tolerance", 0, "override the fixture tolerance")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--version id] [--tolerance x]")
		os.Exit(2)
	}
	os.Exit(run(*configPath, *fixturePath, *version, *tolerance))
}

// #endregion main

// #region run

func run(configPath, fixturePath, versionID string, tolerance float64) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}
	injection, err := cfg.Injection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 2
	}

	f, err := replay.LoadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	scenarios, err := f.ToScenarios()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fixture: %v\n", err)
		return 2
	}
	rc := f.ToReplayConfig()
	if tolerance > 0 {
		rc.Tolerance = tolerance
	}

	store, err := paramstore.NewStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	eng, servedID, err := openEngine(store, versionID, engine.Options{Injection: injection})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if f.VersionID != "" && f.VersionID != servedID {
		fmt.Fprintf(os.Stderr, "note: fixture recorded against %s, replaying %s\n",
			shortID(f.VersionID), shortID(servedID))
	}

	results := replay.Replay(eng, scenarios, rc)
	return printResults(results, rc)
}

func openEngine(store *paramstore.Store, versionID string, opts engine.Options) (*engine.Engine, string, error) {
	graphStore, err := tradegraph.NewStore(store.DB())
	if err != nil {
		return nil, "", fmt.Errorf("init graph store: %w", err)
	}
	g, err := graphStore.Load()
	if errors.Is(err, tradegraph.ErrNoGraph) {
		return nil, "", fmt.Errorf("no cached trade graph, run bootstrap-graph first")
	}
	if err != nil {
		return nil, "", err
	}

	var rec paramstore.ParamRecord
	if versionID != "" {
		rec, err = store.GetVersion(versionID)
	} else {
		rec, err = store.GetCurrent()
	}
	if err != nil {
		return nil, "", fmt.Errorf("load parameters: %w", err)
	}
	eng, err := engine.New(rec.Model, g, opts)
	if err != nil {
		return nil, "", fmt.Errorf("engine: %w", err)
	}
	return eng, rec.VersionID, nil
}

// #endregion run

// #region output

// printResults outputs a comparison table and returns the exit code.
func printResults(results []replay.ReplayResult, rc replay.ReplayConfig) int {
	fmt.Printf("%-20s| %-10s| %-10s| %-12s| %s\n", "Scenario", "Result", "Risk", "Max Delta", "Drifted")
	fmt.Printf("%-20s+%-11s+%-11s+%-13s+%s\n",
		"--------------------", "-----------", "-----------", "-------------", "--------")

	for _, r := range results {
		drifted := strings.Join(r.Drifted, ",")
		if r.Action == "error" {
			drifted = r.Reason
		}
		fmt.Printf("%-20s| %-10s| %-10s| %-12.3g| %s\n", r.ScenarioID, r.Action, r.Risk.Level, r.MaxDelta, drifted)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d drift, %d error, %d recorded (tolerance %.2g, max delta %.3g)\n",
		s.TotalScenarios, s.Matches, s.Drifts, s.Errors, s.Recorded, rc.Tolerance, s.MaxDelta)

	if s.Drifts > 0 || s.Errors > 0 {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
