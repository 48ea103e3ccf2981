// Package market fetches comparable market prices for a watch reference.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/llmjson"
	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/pkg/perplexity"
)

// ErrNotConfigured is returned when no search-capable key is available.
var ErrNotConfigured = eris.New("market: price provider not configured")

const (
	requestTimeout = 60 * time.Second
	temperature    = 0.1
	topP           = 0.9
	maxTokens      = 1000

	systemPrompt = "You are an expert on luxury watch market prices. Answer ONLY with a JSON array of prices and no additional explanation. Format: [12000, 13500, 14000]"
)

var conditionText = map[model.Condition]string{
	model.ConditionNew:         "new/unworn",
	model.ConditionUnworn:      "unworn",
	model.ConditionWorn:        "worn/good condition",
	model.ConditionHeavilyWorn: "heavily worn/heavily used",
}

// Quote is the outcome of one price query. Raw keeps the upstream response
// for the research log.
type Quote struct {
	Prices  []decimal.Decimal
	Raw     json.RawMessage
	Content string
}

// PriceProvider queries the search backend for current sale prices.
type PriceProvider struct {
	configured bool
	client     perplexity.Client
}

// NewPriceProvider builds the provider; an empty apiKey leaves it
// unconfigured.
func NewPriceProvider(apiKey string, opts ...perplexity.Option) *PriceProvider {
	return &PriceProvider{
		configured: apiKey != "",
		client:     perplexity.NewClient(apiKey, opts...),
	}
}

// IsConfigured reports whether FetchPrices can reach the backend.
func (p *PriceProvider) IsConfigured() bool { return p.configured }

// FetchPrices returns the positive prices found for ref in cond. Unlike the
// spec providers, an unconfigured provider and upstream failures are errors.
func (p *PriceProvider) FetchPrices(ctx context.Context, ref string, modelName *string, cond model.Condition) (*Quote, error) {
	if !p.configured {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	temp, top, tokens := temperature, topP, maxTokens
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(ref, modelName, cond)},
		},
		Temperature:            &temp,
		TopP:                   &top,
		MaxTokens:              &tokens,
		SearchRecencyFilter:    "week",
		ReturnImages:           false,
		ReturnRelatedQuestions: false,
	})
	if err != nil {
		return nil, eris.Wrap(err, "market: fetch prices")
	}

	content := resp.Content()
	prices := ParsePrices(content)

	zap.L().Info("market: prices fetched",
		zap.String("reference_number", ref),
		zap.String("condition", string(cond)),
		zap.Int("price_count", len(prices)),
	)

	return &Quote{Prices: prices, Raw: resp.Raw, Content: content}, nil
}

// BuildPrompt renders the price-search prompt.
func BuildPrompt(ref string, modelName *string, cond model.Condition) string {
	canonical, _ := model.ParseCondition(string(cond))
	condText, ok := conditionText[canonical]
	if !ok {
		condText = conditionText[model.ConditionWorn]
	}

	var modelText string
	if modelName != nil && strings.TrimSpace(*modelName) != "" {
		modelText = fmt.Sprintf(" (%s)", strings.TrimSpace(*modelName))
	}

	return fmt.Sprintf(`Search Chrono24, WatchCharts, Watchbase and other luxury watch marketplaces for current sale prices of:
Reference number: %s%s
Condition: %s

Return ONLY a JSON array of the prices found (8-15 prices).
Format: [12000, 13500, 14200, 15000, 13800, 14500, 15200, 13900]

IMPORTANT: Only the array, no explanation.`, ref, modelText, condText)
}

// ParsePrices extracts the first JSON array from content and keeps its
// positive numeric elements. Numeric strings are accepted; anything else is
// dropped silently.
func ParsePrices(content string) []decimal.Decimal {
	arr := llmjson.Array(content)
	prices := make([]decimal.Decimal, 0, len(arr))
	for _, v := range arr {
		d, ok := toDecimal(v)
		if !ok || !d.IsPositive() {
			continue
		}
		prices = append(prices, d)
	}
	return prices
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	}
	return decimal.Zero, false
}
