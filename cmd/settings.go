package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/watch-research/internal/credentials"
	"github.com/sells-group/watch-research/internal/model"
)

var (
	settingsUser    string
	settingsService string
	settingsKey     string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage per-user API credentials",
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set one API credential for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if settingsUser == "" || settingsService == "" {
			return eris.New("--user and --service are required")
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s, err := st.GetUserAPISettings(ctx, settingsUser)
		if err != nil {
			return err
		}
		if s == nil {
			s = &model.UserAPISettings{UserID: settingsUser}
		}
		if !credentials.Apply(s, credentials.Service(settingsService), settingsKey) {
			names := make([]string, 0, len(credentials.AllServices()))
			for _, svc := range credentials.AllServices() {
				names = append(names, string(svc))
			}
			return eris.Errorf("unknown service %q (want one of %s)", settingsService, strings.Join(names, ", "))
		}
		if err := st.SaveUserAPISettings(ctx, s); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s %s = %s\n", settingsUser, settingsService, credentials.Mask(settingsKey))
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective credentials for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if settingsUser == "" {
			return eris.New("--user is required")
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r := credentials.NewResolver(st, cfg)
		for _, svc := range credentials.AllServices() {
			v, ok := r.Credential(ctx, svc, settingsUser)
			shown := dimColor.Sprint("(not set)")
			if ok {
				shown = credentials.Mask(v)
			}
			fmt.Fprintf(os.Stdout, "  %-22s %s\n", svc, shown)
		}
		return nil
	},
}

func init() {
	settingsCmd.PersistentFlags().StringVar(&settingsUser, "user", "", "user id")
	settingsSetCmd.Flags().StringVar(&settingsService, "service", "", "perplexity, openai, anthropic, gemini, google_search_key or google_search_engine")
	settingsSetCmd.Flags().StringVar(&settingsKey, "key", "", "credential value; empty clears the user override")

	settingsCmd.AddCommand(settingsSetCmd, settingsShowCmd)
	rootCmd.AddCommand(settingsCmd)
}
