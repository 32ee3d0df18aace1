package main

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nicheradar/nicheradar/internal/report"
	"github.com/nicheradar/nicheradar/internal/research"
)

var (
	runCategory    string
	runKeywords    string
	runMarketplace string
	runCatalogIDs  []string
	runTier        string
	runModel       string
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one research job and print a summary",
	Long: `Run executes a single research job in the foreground. Progress is
logged to stderr; the run summary goes to stdout. The full report markdown
is stored in the configured storage backend under the printed report id.`,
	RunE: runResearch,
}

func init() {
	runCmd.Flags().StringVar(&runCategory, "category", "", "product category (required)")
	runCmd.Flags().StringVar(&runKeywords, "keywords", "", "niche keywords (required)")
	runCmd.Flags().StringVar(&runMarketplace, "marketplace", "US", "target marketplace")
	runCmd.Flags().StringSliceVar(&runCatalogIDs, "ids", nil, "catalog product ids to include")
	runCmd.Flags().StringVar(&runTier, "tier", "basic", "analysis tier: basic or advanced")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override (advanced tier only)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the summary as JSON")
	_ = runCmd.MarkFlagRequired("category")
	_ = runCmd.MarkFlagRequired("keywords")
	rootCmd.AddCommand(runCmd)
}

func runResearch(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	slog.SetDefault(logger)

	p, err := buildPipeline(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer p.close()

	req := research.Request{
		Category:      runCategory,
		Keywords:      runKeywords,
		Marketplace:   runMarketplace,
		CatalogIDs:    runCatalogIDs,
		Tier:          research.Tier(runTier),
		ModelOverride: runModel,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	taskID := uuid.NewString()

	// Stream progress to stderr while the job runs.
	sub := p.broadcaster.Subscribe(taskID)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for ev := range sub.C {
			logger.Info("progress", "step", ev.Step, "status", ev.Status, "percent", ev.Progress)
		}
	}()

	start := time.Now()
	rep, err := p.orch.Run(cmd.Context(), req, taskID)
	p.broadcaster.Close(taskID)
	<-progressDone
	if err != nil {
		return err
	}

	summary := report.Build(rep, nil, time.Since(start))
	if runJSON {
		return report.WriteJSON(cmd.OutOrStdout(), summary)
	}
	return report.WriteText(cmd.OutOrStdout(), summary)
}
