package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"research", "watch", "valuations", "logs", "settings", "serve", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "watch-research", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestResearchCommand_Stages(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range researchCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "specs", "prices", "images"} {
		assert.True(t, names[name], "expected research subcommand %q", name)
	}

	flag := researchCmd.PersistentFlags().Lookup("watch-id")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestWatchAddCommand_Flags(t *testing.T) {
	flag := watchAddCmd.Flags().Lookup("condition")
	require.NotNil(t, flag)
	assert.Equal(t, "worn", flag.DefValue)
	for _, name := range []string{"user", "brand", "model", "ref"} {
		assert.NotNil(t, watchAddCmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestLogsListCommand_Flags(t *testing.T) {
	flag := logsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}

func TestRunResearch_RequiresWatchID(t *testing.T) {
	researchWatchID = ""
	err := runResearch(researchRunCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch-id is required")
}
