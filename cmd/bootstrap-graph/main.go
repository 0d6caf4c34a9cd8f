package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/sanction-impact/internal/config"
	"github.com/danielpatrickdp/sanction-impact/internal/indicator"
	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/paramstore"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
)

// #region main
func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	offline := flag.Bool("offline", false, "skip the indicator API and zero-fill every feature")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	fmt.Println("=== Trade Graph Bootstrap ===")
	fmt.Printf("  DB: %s | Indicators: %s\n", cfg.DBPath, cfg.Indicator.BaseURL)

	store, err := paramstore.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	graphStore, err := tradegraph.NewStore(store.DB())
	if err != nil {
		log.Fatalf("failed to init graph store: %v", err)
	}

	var provider indicator.Provider = indicator.NewWorldBank(cfg.IndicatorConfig())
	if *offline {
		provider = indicator.NewStatic()
	}

	// Phase 1: static node features
	fmt.Println("\n--- Phase 1: Node Features ---")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	g, report, err := tradegraph.Reference(ctx, provider)
	cancel()
	if err != nil {
		log.Fatalf("build trade graph: %v", err)
	}
	fmt.Printf("  Countries: %d | Fetched: %d | Zero-filled: %d\n",
		g.NumNodes(), report.Fetched, len(report.Degrades))

	for _, d := range report.Degrades {
		if err := logging.LogDegrade(store.DB(), "", d); err != nil {
			log.Printf("logging error: %v", err)
		}
	}

	// Phase 2: cache
	fmt.Println("\n--- Phase 2: Cache ---")
	if err := graphStore.Save(g); err != nil {
		log.Fatalf("save trade graph: %v", err)
	}
	fmt.Printf("  Nodes: %d | Edges: %d\n", g.NumNodes(), len(g.Edges))

	// Phase 3: initial parameters, only if nothing is active yet
	fmt.Println("\n--- Phase 3: Parameters ---")
	versionID, created, err := ensureInitial(store, cfg, g)
	if err != nil {
		log.Fatalf("initial parameters: %v", err)
	}
	if created {
		fmt.Printf("  Created initial version %s\n", versionID)
	} else {
		fmt.Printf("  Active version %s kept\n", versionID)
	}

	payload, _ := json.Marshal(report)
	err = logging.LogDecision(store.DB(), logging.Entry{
		VersionID:   versionID,
		TriggerType: "bootstrap",
		PayloadJSON: string(payload),
		Decision:    "commit",
		Reason:      fmt.Sprintf("%d fetched, %d zero-filled", report.Fetched, len(report.Degrades)),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		log.Printf("logging error: %v", err)
	}

	fmt.Printf("\n=== Bootstrap Complete ===\n")
}

// #endregion main

// #region initial-params
// ensureInitial creates a seeded model for g when the store has no active
// version. An existing version must still fit g.
func ensureInitial(store *paramstore.Store, cfg config.Config, g *tradegraph.Graph) (string, bool, error) {
	mc, err := cfg.ModelConfig(g)
	if err != nil {
		return "", false, err
	}
	current, err := store.GetCurrent()
	if err == nil {
		if current.Model.Config() != mc {
			log.Printf("active version %s has shape %+v, config asks for %+v",
				current.VersionID, current.Model.Config(), mc)
		}
		return current.VersionID, false, nil
	}
	if !errors.Is(err, paramstore.ErrNoActive) {
		return "", false, err
	}
	m, err := model.New(mc, cfg.Train.Seed)
	if err != nil {
		return "", false, err
	}
	rec, err := store.CreateInitial(m)
	if err != nil {
		return "", false, err
	}
	return rec.VersionID, true, nil
}

// #endregion initial-params
