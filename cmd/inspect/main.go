package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/sanction-impact/internal/eval"
	"github.com/danielpatrickdp/sanction-impact/internal/logging"
	"github.com/danielpatrickdp/sanction-impact/internal/paramstore"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to sanction_impact.db")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	rollback := flag.String("rollback", "", "make this version active again")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/sanction_impact.db [--last N] [--version id] [--rollback id] [--json]")
		os.Exit(2)
	}

	store, err := paramstore.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *rollback != "":
		err = runRollback(store, *rollback)
	case *version != "":
		err = runDetailMode(store, *version, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID string  `json:"version_id"`
	ParentID  string  `json:"parent_id,omitempty"`
	Active    bool    `json:"active"`
	ParamNorm float64 `json:"param_norm"`
	Hidden    int     `json:"hidden"`
	Window    int     `json:"window"`
	CreatedAt string  `json:"created_at"`
}

func runListMode(store *paramstore.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}
	activeID := ""
	if current, err := store.GetCurrent(); err == nil {
		activeID = current.VersionID
	}

	// Store returns DESC, reverse for chronological
	rows := make([]listRow, len(versions))
	for i, rec := range versions {
		cfg := rec.Model.Config()
		rows[len(versions)-1-i] = listRow{
			VersionID: rec.VersionID,
			ParentID:  rec.ParentID,
			Active:    rec.VersionID == activeID,
			ParamNorm: rec.Model.Params().Norm(),
			Hidden:    cfg.Hidden,
			Window:    cfg.Window,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-12s  %-6s  %10s  %6s  %6s  %s\n",
		"Version", "Parent", "Active", "Param Norm", "Hidden", "Window", "Time")
	fmt.Printf("%-12s+-%-12s+-%-6s+-%10s+-%6s+-%6s+-%s\n",
		"------------", "------------", "------", "----------", "------", "------", "--------------------")
	for _, r := range rows {
		active := ""
		if r.Active {
			active = "*"
		}
		fmt.Printf("%-12s  %-12s  %-6s  %10.4f  %6d  %6d  %s\n",
			shortID(r.VersionID), shortID(r.ParentID), active, r.ParamNorm, r.Hidden, r.Window, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID   string               `json:"version_id"`
	ParentID    string               `json:"parent_id"`
	CreatedAt   string               `json:"created_at"`
	ParamNorm   float64              `json:"param_norm"`
	ParamCount  int                  `json:"param_count"`
	TriggerType string               `json:"trigger_type,omitempty"`
	Decision    string               `json:"decision,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Training    *logging.TrainRecord `json:"training,omitempty"`
	Probes      []eval.EvalMetric    `json:"probes,omitempty"`
}

func runDetailMode(store *paramstore.Store, versionID string, jsonOut bool) error {
	vl, err := store.GetVersionWithLog(versionID)
	if err != nil {
		return err
	}

	out := detailOutput{
		VersionID:   vl.VersionID,
		ParentID:    vl.ParentID,
		CreatedAt:   vl.CreatedAt.Format(time.RFC3339),
		ParamNorm:   vl.Model.Params().Norm(),
		ParamCount:  vl.Model.Params().Count(),
		TriggerType: vl.TriggerType,
		Decision:    vl.Decision,
		Reason:      vl.Reason,
	}
	if vl.TriggerType == "train" && vl.PayloadJSON != "" {
		var tr logging.TrainRecord
		if err := json.Unmarshal([]byte(vl.PayloadJSON), &tr); err == nil {
			out.Training = &tr
		}
	}
	if vl.MetricsJSON != "" {
		_ = json.Unmarshal([]byte(vl.MetricsJSON), &out.Probes)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Version:    %s\n", out.VersionID)
	fmt.Printf("Parent:     %s\n", out.ParentID)
	fmt.Printf("Created:    %s\n", out.CreatedAt)
	fmt.Printf("Param Norm: %.4f (%d values)\n", out.ParamNorm, out.ParamCount)
	fmt.Printf("Trigger:    %s\n", out.TriggerType)
	fmt.Printf("Decision:   %s\n", out.Decision)
	fmt.Printf("Reason:     %s\n", out.Reason)

	if tr := out.Training; tr != nil {
		fmt.Printf("\nTraining:\n")
		fmt.Printf("  Source:        %s\n", tr.Source)
		fmt.Printf("  Epochs/Steps:  %d / %d\n", tr.Epochs, tr.Steps)
		fmt.Printf("  Optimizer:     %s (lr %g)\n", tr.Optimizer, tr.LearningRate)
		fmt.Printf("  Holdout Loss:  %.6f -> %.6f\n", tr.BaselineLoss, tr.FinalLoss)
		fmt.Printf("  Zero-filled:   %d labels, %d failed epochs\n", tr.DegradedLabels, tr.FailedEpochs)
	}
	if len(out.Probes) > 0 {
		fmt.Printf("\nProbes:\n")
		for _, p := range out.Probes {
			status := "ok"
			if !p.Pass {
				status = "FAIL"
			}
			fmt.Printf("  %-20s %10.4f  %s\n", p.Name, p.Value, status)
		}
	}
	return nil
}

// #endregion detail-mode

// #region rollback

func runRollback(store *paramstore.Store, versionID string) error {
	previous := ""
	if current, err := store.GetCurrent(); err == nil {
		previous = current.VersionID
	}
	if err := store.Rollback(versionID); err != nil {
		return err
	}
	err := logging.LogDecision(store.DB(), logging.Entry{
		VersionID:   versionID,
		TriggerType: "rollback",
		Decision:    "commit",
		Reason:      fmt.Sprintf("manual rollback from %s", shortID(previous)),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("log rollback: %w", err)
	}
	fmt.Printf("Active version: %s (was %s)\n", versionID, previous)
	return nil
}

// #endregion rollback

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
