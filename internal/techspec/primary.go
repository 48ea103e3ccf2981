package techspec

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/pkg/perplexity"
)

// Primary is the search-capable provider backed by Perplexity. It returns
// citations as Sources and may suggest image URLs.
type Primary struct {
	configured bool
	client     perplexity.Client
}

// NewPrimary builds the provider; an empty apiKey leaves it unconfigured.
func NewPrimary(apiKey string, opts ...perplexity.Option) *Primary {
	return &Primary{
		configured: apiKey != "",
		client:     perplexity.NewClient(apiKey, opts...),
	}
}

// Name implements Provider.
func (p *Primary) Name() string { return NamePerplexity }

// IsConfigured implements Provider.
func (p *Primary) IsConfigured() bool { return p.configured }

// FetchSpec implements Provider.
func (p *Primary) FetchSpec(ctx context.Context, brand *string, ref string, modelName *string) *model.TechnicalSpecResult {
	if !p.configured {
		return failed(p.Name(), errNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	temp, topP, tokens := temperature, 0.9, maxTokens
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(brand, ref, modelName, true)},
		},
		Temperature:            &temp,
		TopP:                   &topP,
		MaxTokens:              &tokens,
		SearchRecencyFilter:    "year",
		ReturnImages:           true,
		ReturnRelatedQuestions: false,
	})
	if err != nil {
		zap.L().Warn("techspec: perplexity request failed",
			zap.String("reference_number", ref),
			zap.Error(err),
		)
		return failed(p.Name(), err.Error())
	}

	fields := ParseSpecContent(resp.Content())
	if len(fields.ImageURLs()) == 0 && len(resp.Images) > 0 {
		urls := make([]any, 0, len(resp.Images))
		for _, img := range resp.Images {
			if img.ImageURL != "" {
				urls = append(urls, img.ImageURL)
			}
		}
		if len(urls) > 0 {
			fields[model.ImageURLsKey] = urls
		}
	}

	zap.L().Info("techspec: perplexity spec fetched",
		zap.String("reference_number", ref),
		zap.Int("fields", len(fields.Known())),
		zap.Int("citations", len(resp.Citations)),
	)

	return &model.TechnicalSpecResult{
		Success:     true,
		Provider:    p.Name(),
		Fields:      fields,
		Sources:     resp.Citations,
		RawResponse: resp.Raw,
	}
}
