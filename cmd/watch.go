package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/store"
)

var (
	watchUser      string
	watchBrand     string
	watchModel     string
	watchRef       string
	watchCondition string
	watchLimit     int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage watches",
}

var watchAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a watch to a collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchUser == "" || watchRef == "" {
			return eris.New("--user and --ref are required")
		}

		cond, ok := model.ParseCondition(watchCondition)
		if !ok {
			zap.L().Warn("unknown condition, default factor will apply", zap.String("condition", watchCondition))
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		w := &model.Watch{
			UserID:          watchUser,
			Brand:           watchBrand,
			Model:           watchModel,
			ReferenceNumber: watchRef,
			Condition:       cond,
		}
		if err := st.CreateWatch(ctx, w); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, w.ID)
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		watches, err := st.ListWatches(ctx, store.WatchFilter{
			UserID: watchUser,
			Brand:  watchBrand,
			Limit:  watchLimit,
		})
		if err != nil {
			return err
		}
		for _, w := range watches {
			value := dimColor.Sprint("-")
			if w.CurrentMarketValue != nil {
				value = okColor.Sprint(w.CurrentMarketValue.StringFixed(2))
			}
			fmt.Fprintf(os.Stdout, "%s  %-16s %-12s %-10s %s\n", w.ID, w.Brand, w.ReferenceNumber, w.Condition, value)
		}
		return nil
	},
}

var watchShowCmd = &cobra.Command{
	Use:   "show <watch-id>",
	Short: "Show a watch with its specs and images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		w, err := st.GetWatch(ctx, args[0])
		if err != nil {
			return err
		}
		printWatch(os.Stdout, w)

		imgs, err := st.ListWatchImages(ctx, w.ID)
		if err != nil {
			return err
		}
		for _, img := range imgs {
			marker := ""
			if img.IsPrimary {
				marker = okColor.Sprint(" [primary]")
			}
			fmt.Fprintf(os.Stdout, "  image %s (%s)%s\n", img.Path, img.Source, marker)
		}
		return nil
	},
}

func init() {
	watchAddCmd.Flags().StringVar(&watchUser, "user", "", "owner user id")
	watchAddCmd.Flags().StringVar(&watchBrand, "brand", "", "brand name")
	watchAddCmd.Flags().StringVar(&watchModel, "model", "", "model name")
	watchAddCmd.Flags().StringVar(&watchRef, "ref", "", "reference number")
	watchAddCmd.Flags().StringVar(&watchCondition, "condition", string(model.ConditionWorn), "new, unworn, worn or heavily-worn")

	watchListCmd.Flags().StringVar(&watchUser, "user", "", "filter by owner")
	watchListCmd.Flags().StringVar(&watchBrand, "brand", "", "filter by brand")
	watchListCmd.Flags().IntVar(&watchLimit, "limit", 100, "max watches to list")

	watchCmd.AddCommand(watchAddCmd, watchListCmd, watchShowCmd)
	rootCmd.AddCommand(watchCmd)
}
