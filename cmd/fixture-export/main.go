package main

import (
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/danielpatrickdp/sanction-impact/internal/config"
	"github.com/danielpatrickdp/sanction-impact/internal/engine"
	"github.com/danielpatrickdp/sanction-impact/internal/paramstore"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"github.com/danielpatrickdp/sanction-impact/internal/replay"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
)

// #region main

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	outPath := flag.String("out", "", "output fixture path (.json or .yaml)")
	random := flag.Int("random", 4, "number of seeded random policies to add")
	seed := flag.Int64("seed", 1, "seed for the random policies")
	tolerance := flag.Float64("tolerance", 1e-9, "per-head tolerance stored in the fixture")
	flag.Parse()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --out path/to/fixture.json [--random N] [--seed S] [--tolerance x]")
		os.Exit(2)
	}

	if err := run(*configPath, *outPath, *random, *seed, *tolerance); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(configPath, outPath string, random int, seed int64, tolerance float64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	injection, err := cfg.Injection()
	if err != nil {
		return err
	}

	store, err := paramstore.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	graphStore, err := tradegraph.NewStore(store.DB())
	if err != nil {
		return fmt.Errorf("init graph store: %w", err)
	}
	g, err := graphStore.Load()
	if errors.Is(err, tradegraph.ErrNoGraph) {
		return fmt.Errorf("no cached trade graph, run bootstrap-graph first")
	}
	if err != nil {
		return err
	}
	current, err := store.GetCurrent()
	if err != nil {
		return fmt.Errorf("load active parameters: %w", err)
	}
	eng, err := engine.New(current.Model, g, engine.Options{Injection: injection})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	f := &replay.Fixture{
		Description: fmt.Sprintf("golden predictions of version %s (%s injection)", current.VersionID, injection),
		VersionID:   current.VersionID,
		Tolerance:   tolerance,
		Scenarios:   scenarios(random, seed),
	}
	sc, err := f.ToScenarios()
	if err != nil {
		return err
	}
	if err := replay.Record(f, replay.Replay(eng, sc, replay.ReplayConfig{Tolerance: tolerance})); err != nil {
		return err
	}
	if err := replay.WriteFixture(outPath, f); err != nil {
		return err
	}

	fmt.Printf("Exported %d scenarios to %s\n", len(f.Scenarios), outPath)
	fmt.Printf("  Version: %s\n", current.VersionID)
	return nil
}

// scenarios returns the standing presets plus seeded random policies.
func scenarios(random int, seed int64) []replay.FixtureScenario {
	out := []replay.FixtureScenario{
		{ID: "neutral", Policy: request(policy.Neutral())},
		{ID: "maximal", Policy: request(policy.Maximal())},
		{ID: "risk-probe", Policy: request(engine.RiskPolicy())},
		{ID: "trade-only", Policy: policy.Request{Trade: 1}},
	}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < random; i++ {
		out = append(out, replay.FixtureScenario{
			ID:     fmt.Sprintf("random-%d", i),
			Policy: request(policy.Random(rng)),
		})
	}
	return out
}

func request(v policy.Vector) policy.Request {
	s := v.Severity
	return policy.Request{
		Severity:       &s,
		Financial:      v.Financial,
		Trade:          v.Trade,
		Technology:     v.Technology,
		Energy:         v.Energy,
		IssuerStrength: v.IssuerStrength,
		Binding:        v.Binding,
	}
}

// #endregion export
