package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/pkg/perplexity"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestParsePrices(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "plain", content: "[12000, 13500, 14000]", want: []string{"12000", "13500", "14000"}},
		{name: "fenced", content: "```json\n[12000.50, 13500]\n```", want: []string{"12000.5", "13500"}},
		{name: "numeric_strings", content: `["13500", " 14000 ", "n/a"]`, want: []string{"13500", "14000"}},
		{name: "drops_non_positive", content: "[0, -100, 9000, null, true, {}]", want: []string{"9000"}},
		{name: "prose_around", content: "Found these: [11000, 11500]. Hope this helps.", want: []string{"11000", "11500"}},
		{name: "no_array", content: "I could not find any prices.", want: []string{}},
		{name: "empty", content: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrices(tt.content)
			strs := make([]string, len(got))
			for i, d := range got {
				strs[i] = d.String()
			}
			assert.Equal(t, tt.want, strs)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	name := "Submariner"
	p := BuildPrompt("126610LN", &name, model.ConditionWorn)
	assert.Contains(t, p, "Chrono24")
	assert.Contains(t, p, "WatchCharts")
	assert.Contains(t, p, "Watchbase")
	assert.Contains(t, p, "Reference number: 126610LN (Submariner)")
	assert.Contains(t, p, "Condition: worn/good condition")
	assert.Contains(t, p, "8-15 prices")

	assert.Contains(t, BuildPrompt("x", nil, "stark_getragen"), "Condition: heavily worn")
	assert.Contains(t, BuildPrompt("x", nil, "mint"), "Condition: worn/good condition")
}

func TestFetchPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "week", req["search_recency_filter"])
		assert.Equal(t, false, req["return_images"])
		assert.InDelta(t, 0.1, req["temperature"], 0.001)
		assert.EqualValues(t, 1000, req["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p","choices":[{"index":0,"message":{"role":"assistant","content":"[12000, 13500, \"14000\", -1]"}}]}`))
	}))
	defer srv.Close()

	p := NewPriceProvider("k", perplexity.WithBaseURL(srv.URL))
	require.True(t, p.IsConfigured())

	q, err := p.FetchPrices(context.Background(), "126610LN", nil, model.ConditionWorn)
	require.NoError(t, err)
	require.Len(t, q.Prices, 3)
	assert.True(t, decimal.NewFromInt(14000).Equal(q.Prices[2]))
	assert.Contains(t, string(q.Raw), `"choices"`)
	assert.Contains(t, q.Content, "13500")
}

func TestFetchPrices_NotConfigured(t *testing.T) {
	_, err := NewPriceProvider("").FetchPrices(context.Background(), "x", nil, model.ConditionNew)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotConfigured))
}

func TestFetchPrices_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewPriceProvider("bad", perplexity.WithBaseURL(srv.URL)).FetchPrices(context.Background(), "x", nil, model.ConditionNew)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market: fetch prices")
	assert.Contains(t, err.Error(), "401")
}
