package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/danielpatrickdp/sanction-impact/internal/config"
	"github.com/danielpatrickdp/sanction-impact/internal/engine"
	"github.com/danielpatrickdp/sanction-impact/internal/explain"
	"github.com/danielpatrickdp/sanction-impact/internal/model"
	"github.com/danielpatrickdp/sanction-impact/internal/paramstore"
	"github.com/danielpatrickdp/sanction-impact/internal/policy"
	"github.com/danielpatrickdp/sanction-impact/internal/tradegraph"
)

// #region main
func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	severity := flag.Float64("severity", -1, "sanction severity in [0,1]; negative derives it")
	financial := flag.Float64("financial", 0, "financial sanctions flag")
	trade := flag.Float64("trade", 0, "trade sanctions flag")
	technology := flag.Float64("technology", 0, "technology sanctions flag")
	energy := flag.Float64("energy", 0, "energy sanctions flag")
	issuer := flag.Float64("issuer", 0, "issuer strength in [0,1]")
	binding := flag.Float64("binding", 0, "binding flag")
	policyJSON := flag.String("policy", "", "policy as JSON, overrides the field flags")
	risk := flag.Bool("risk", false, "also print the risk assessment")
	riskProbe := flag.Bool("risk-probe", false, "assess the standing risk probe policy instead of the flags")
	explainMetric := flag.String("explain", "", "ask the explanation service about one metric (e.g. gdp)")
	jsonOut := flag.Bool("json", false, "output as JSON")
	repl := flag.Bool("repl", false, "read one JSON policy per line from stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	store, err := paramstore.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	opts := engine.Options{}
	if opts.Injection, err = cfg.Injection(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if *explainMetric != "" || *repl {
		client, err := explain.NewClient(cfg.ExplainerConfig())
		if err != nil {
			log.Fatalf("failed to connect to explainer at %s: %v", cfg.Explainer.Addr, err)
		}
		defer client.Close()
		opts.Explainer = client
	}

	eng, versionID, err := openEngine(store, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *repl {
		runREPL(eng, versionID)
		return
	}

	req := policy.Request{
		Financial:      *financial,
		Trade:          *trade,
		Technology:     *technology,
		Energy:         *energy,
		IssuerStrength: *issuer,
		Binding:        *binding,
	}
	if *severity >= 0 {
		req.Severity = severity
	}
	if *policyJSON != "" {
		req = policy.Request{}
		if err := json.Unmarshal([]byte(*policyJSON), &req); err != nil {
			log.Fatalf("parse policy: %v", err)
		}
	}
	v, err := req.Resolve()
	if err != nil {
		log.Fatalf("invalid policy: %v", err)
	}
	if *riskProbe {
		v = engine.RiskPolicy()
		*risk = true
	}

	out, err := predict(eng, v, *risk, *explainMetric)
	if err != nil {
		log.Fatalf("%v", err)
	}
	out.VersionID = versionID
	if *jsonOut {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatalf("marshal json: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	printOutput(out)
}

// #endregion main

// #region predict
type output struct {
	VersionID   string             `json:"version_id"`
	Policy      policy.Vector      `json:"policy"`
	Predictions map[string]float64 `json:"predictions"`
	Risk        *engine.Risk       `json:"risk,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
}

func predict(eng *engine.Engine, v policy.Vector, withRisk bool, explainMetric string) (output, error) {
	pred, err := eng.Infer(v)
	if err != nil {
		return output{}, fmt.Errorf("inference: %w", err)
	}
	out := output{Policy: v, Predictions: pred.Map()}
	if withRisk {
		r := engine.AssessRisk(pred)
		out.Risk = &r
	}
	if explainMetric != "" {
		m, ok := model.ParseMetric(explainMetric)
		if !ok {
			return output{}, fmt.Errorf("unknown metric %q", explainMetric)
		}
		text, err := eng.Explain(context.Background(), m, pred, v)
		if err != nil {
			// the prediction is still useful without prose
			log.Printf("explainer error: %v", err)
		}
		out.Explanation = text
	}
	return out, nil
}

func openEngine(store *paramstore.Store, opts engine.Options) (*engine.Engine, string, error) {
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
	current, err := store.GetCurrent()
	if errors.Is(err, paramstore.ErrNoActive) {
		return nil, "", fmt.Errorf("no trained parameters, run bootstrap-graph or train first")
	}
	if err != nil {
		return nil, "", err
	}
	eng, err := engine.New(current.Model, g, opts)
	if err != nil {
		return nil, "", fmt.Errorf("engine: %w", err)
	}
	return eng, current.VersionID, nil
}

// #endregion predict

// #region repl
// runREPL answers one JSON policy per line. A line of the form
// "explain <metric> <json>" also asks the explanation service.
func runREPL(eng *engine.Engine, versionID string) {
	fmt.Println("Sanction Impact Predictor ready.")
	fmt.Printf("  Version: %s\n", versionID)
	fmt.Println(`Enter a policy as JSON, e.g. {"trade":1,"binding":1} (or 'quit' to exit):`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		metric := ""
		if rest, ok := strings.CutPrefix(line, "explain "); ok {
			metric, line, _ = strings.Cut(strings.TrimSpace(rest), " ")
		}

		var req policy.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			log.Printf("parse policy: %v", err)
			continue
		}
		v, err := req.Resolve()
		if err != nil {
			log.Printf("invalid policy: %v", err)
			continue
		}
		out, err := predict(eng, v, true, metric)
		if err != nil {
			log.Printf("%v", err)
			continue
		}
		out.VersionID = versionID
		printOutput(out)
	}
}

// #endregion repl

// #region output
func printOutput(out output) {
	fmt.Printf("Version: %s\n", out.VersionID)
	fmt.Printf("Policy:  severity=%.2f financial=%.0f trade=%.0f technology=%.0f energy=%.0f issuer=%.2f binding=%.0f\n",
		out.Policy.Severity, out.Policy.Financial, out.Policy.Trade, out.Policy.Technology,
		out.Policy.Energy, out.Policy.IssuerStrength, out.Policy.Binding)
	fmt.Println()
	for _, m := range model.Metrics {
		fmt.Printf("  %-10s %.4f\n", m.String(), out.Predictions[m.String()])
	}
	if out.Risk != nil {
		fmt.Printf("\nRisk: %s (shock %.3f, compliance %d)\n", out.Risk.Level, out.Risk.Shock, out.Risk.Compliance)
		fmt.Printf("  %s\n", out.Risk.Summary)
	}
	if out.Explanation != "" {
		fmt.Printf("\n%s\n", out.Explanation)
	}
	fmt.Println()
}

// #endregion output
