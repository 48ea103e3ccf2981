package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/research"
)

var (
	researchWatchID string
	researchJSON    bool
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run research stages for a watch",
}

var researchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all stages: specs, prices, images",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResearch(cmd, nil)
	},
}

func stageCmd(stage model.Stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(stage),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd, []model.Stage{stage})
		},
	}
}

func runResearch(cmd *cobra.Command, stages []model.Stage) error {
	if researchWatchID == "" {
		return eris.New("--watch-id is required")
	}

	ctx := cmd.Context()
	env, err := initResearch(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	report, err := env.Orchestrator.Run(ctx, researchWatchID, research.RunOptions{Stages: stages})
	if err != nil {
		return err
	}

	if researchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(os.Stdout, report)
	return nil
}

func init() {
	researchCmd.PersistentFlags().StringVar(&researchWatchID, "watch-id", "", "watch to research")
	researchCmd.PersistentFlags().BoolVar(&researchJSON, "json", false, "print the run report as JSON")

	researchCmd.AddCommand(
		researchRunCmd,
		stageCmd(model.StageSpecs, "Fetch technical specifications"),
		stageCmd(model.StagePrices, "Fetch market prices and record a valuation"),
		stageCmd(model.StageImages, "Discover and download images"),
	)
	rootCmd.AddCommand(researchCmd)
}
