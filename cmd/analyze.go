package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/analysis"
	"github.com/sells-group/access-cli/internal/crowfly"
	"github.com/sells-group/access-cli/internal/scenario"
	"github.com/sells-group/access-cli/internal/session"
)

var (
	analyzeFile      string
	analyzeNormalize bool
)

// analyzeRequest is the file format read by the analyze command. JSON files
// parse as well since YAML is a superset.
type analyzeRequest struct {
	TravelMode      string                           `yaml:"travel_mode"`
	Population      access.Population                `yaml:"population"`
	Infrastructures map[string]access.Infrastructure `yaml:"infrastructures"`
}

type analyzeReport struct {
	Cells    int                            `json:"cells"`
	Coverage *analysis.Histogram            `json:"coverage"`
	Quality  map[string]*analysis.Histogram `json:"quality"`
	Served   map[string]*analysis.Histogram `json:"served"`
	Hotspot  *analysis.Scatter              `json:"hotspot"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score a population file offline and print the statistics",
	Long:  "Reads population and infrastructures from a YAML or JSON file, scores them with straight-line travel times and prints coverage, quality, served-count and hotspot statistics as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(analyzeFile)
		if err != nil {
			return eris.Wrap(err, "analyze: open request")
		}
		defer f.Close() //nolint:errcheck

		normalize := cfg.Access.NormalizeWeights || analyzeNormalize
		return runAnalyze(cmd.Context(), f, cmd.OutOrStdout(), cfg.Speeds(), cfg.Access.DefaultTravelMode, normalize)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "request file (YAML or JSON)")
	analyzeCmd.Flags().BoolVar(&analyzeNormalize, "normalize", false, "divide infrastructure weights by their sum")
	_ = analyzeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(ctx context.Context, r io.Reader, w io.Writer, speeds map[string]float64, defaultMode string, normalize bool) error {
	var req analyzeRequest
	if err := yaml.NewDecoder(r).Decode(&req); err != nil {
		return eris.Wrap(err, "analyze: decode request")
	}
	mode := req.TravelMode
	if mode == "" {
		mode = defaultMode
	}

	provider := crowfly.New(speeds)
	store := session.NewStore()
	id := store.NewSession("cli")
	engine := scenario.NewEngine(store,
		access.NewAggregator(provider, access.WithConfig(access.Config{NormalizeWeights: normalize})),
		provider,
	)

	res, err := engine.Baseline(ctx, "cli", id, req.Population, req.Infrastructures, mode)
	if err != nil {
		return eris.Wrap(err, "analyze: aggregate")
	}
	sess, err := store.Get("cli", id)
	if err != nil {
		return eris.Wrap(err, "analyze: load session")
	}
	st := sess.Snapshot()

	report := analyzeReport{
		Cells:   req.Population.Len(),
		Quality: make(map[string]*analysis.Histogram),
		Served:  make(map[string]*analysis.Histogram),
	}
	if report.Coverage, err = analysis.CoverageCount(st); err != nil {
		return eris.Wrap(err, "analyze: coverage")
	}
	if report.Hotspot, err = analysis.Hotspot(st); err != nil {
		return eris.Wrap(err, "analyze: hotspot")
	}
	names := res.Infrastructures()
	for _, name := range names {
		if report.Quality[name], err = analysis.QualityTiers(st, name); err != nil {
			return eris.Wrapf(err, "analyze: quality of %q", name)
		}
		if report.Served[name], err = analysis.ServedCounts(st, name); err != nil {
			return eris.Wrapf(err, "analyze: served counts of %q", name)
		}
	}

	zap.L().Info("analyze: complete",
		zap.Int("cells", report.Cells),
		zap.Int("infrastructures", len(names)),
		zap.String("travel_mode", mode),
	)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
