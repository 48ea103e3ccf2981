package research

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicy_EmptyPathUsesDefault(t *testing.T) {
	p, err := LoadPolicy("", "anthropic")
	require.NoError(t, err)
	assert.Equal(t, []string{"perplexity", "anthropic"}, p.Providers)
}

func TestLoadPolicy_File(t *testing.T) {
	path := writePolicy(t, `
research:
  providers:
    - Gemini
    - perplexity
    - gemini
`)
	p, err := LoadPolicy(path, "openai")
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini", "perplexity"}, p.Providers)
}

func TestLoadPolicy_NoProvidersFallsBackToDefault(t *testing.T) {
	path := writePolicy(t, "research: {}\n")
	p, err := LoadPolicy(path, "openai")
	require.NoError(t, err)
	assert.Equal(t, []string{"perplexity", "openai"}, p.Providers)
}

func TestLoadPolicy_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			want: "research: read policy",
		},
		{
			name: "bad yaml",
			path: func(t *testing.T) string { return writePolicy(t, "research: [\n") },
			want: "research: parse policy",
		},
		{
			name: "unknown provider",
			path: func(t *testing.T) string { return writePolicy(t, "research:\n  providers: [bing]\n") },
			want: `unknown provider "bing"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(tt.path(t), "openai")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefaultPolicy_EmptyFallback(t *testing.T) {
	assert.Equal(t, []string{"perplexity", "openai"}, DefaultPolicy("").Providers)
}
