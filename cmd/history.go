package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logsLimit int

var valuationsCmd = &cobra.Command{
	Use:   "valuations",
	Short: "Inspect valuation history",
}

var valuationsListCmd = &cobra.Command{
	Use:   "list <watch-id>",
	Short: "List the valuation history of a watch, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		vals, err := st.ListValuations(ctx, args[0])
		if err != nil {
			return err
		}
		for _, v := range vals {
			rng := dimColor.Sprint("-")
			if v.PriceRange != nil {
				rng = fmt.Sprintf("%s..%s", v.PriceRange.Min.StringFixed(2), v.PriceRange.Max.StringFixed(2))
			}
			fmt.Fprintf(os.Stdout, "%s  %-14s %s  range %s  listings %d\n",
				v.ValuatedAt.Format("2006-01-02 15:04"),
				v.Source,
				okColor.Sprint(v.EstimatedValue.StringFixed(2)),
				rng,
				v.ComparableListings,
			)
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the research log",
}

var logsListCmd = &cobra.Command{
	Use:   "list <watch-id>",
	Short: "List research-log entries of a watch, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListResearchLogs(ctx, args[0], logsLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			status := okColor.Sprint("ok  ")
			if !e.Success {
				status = failColor.Sprint("fail")
			}
			fmt.Fprintf(os.Stdout, "%s  %-15s %s %6.2fs  %s\n",
				e.ProcessedAt.Format("2006-01-02 15:04:05"),
				e.Source,
				status,
				e.ExecutionTimeSeconds,
				e.ErrorMessage,
			)
		}
		return nil
	},
}

func init() {
	logsListCmd.Flags().IntVar(&logsLimit, "limit", 50, "max entries to list")

	valuationsCmd.AddCommand(valuationsListCmd)
	logsCmd.AddCommand(logsListCmd)
	rootCmd.AddCommand(valuationsCmd, logsCmd)
}
