package research

import (
	"context"

	"github.com/sells-group/watch-research/internal/config"
	"github.com/sells-group/watch-research/internal/credentials"
	"github.com/sells-group/watch-research/internal/imagery"
	"github.com/sells-group/watch-research/internal/market"
	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/techspec"
	"github.com/sells-group/watch-research/pkg/google"
	"github.com/sells-group/watch-research/pkg/perplexity"
)

// Pricer fetches comparable market prices.
type Pricer interface {
	FetchPrices(ctx context.Context, ref string, modelName *string, cond model.Condition) (*market.Quote, error)
}

// ImageFinder discovers image candidates.
type ImageFinder interface {
	SearchConfigured() bool
	Search(ctx context.Context, query string, limit int) ([]model.ImageCandidate, error)
	Scrape(ctx context.Context, sources []string) []model.ImageCandidate
}

// Downloader fetches candidate images and stores them.
type Downloader interface {
	Download(ctx context.Context, candidates []model.ImageCandidate, brand, ref string) []model.DownloadedImage
}

// Factories build upstream clients for one run using the watch owner's
// credentials. Nil fields are replaced with config-driven defaults.
type Factories struct {
	SpecProvider func(ctx context.Context, name, userID string) (techspec.Provider, error)
	Pricer       func(ctx context.Context, userID string) Pricer
	ImageFinder  func(ctx context.Context, userID string) ImageFinder
}

type defaultFactories struct {
	cfg   *config.Config
	creds *credentials.Resolver
	pages imagery.PageFetcher
}

func (f *defaultFactories) perplexityOptions() []perplexity.Option {
	var opts []perplexity.Option
	if f.cfg.Perplexity.BaseURL != "" {
		opts = append(opts, perplexity.WithBaseURL(f.cfg.Perplexity.BaseURL))
	}
	if f.cfg.Perplexity.Model != "" {
		opts = append(opts, perplexity.WithModel(f.cfg.Perplexity.Model))
	}
	return opts
}

func (f *defaultFactories) specProvider(ctx context.Context, name, userID string) (techspec.Provider, error) {
	switch name {
	case techspec.NamePerplexity:
		key := f.creds.Key(ctx, credentials.Perplexity, userID)
		return techspec.NewPrimary(key, f.perplexityOptions()...), nil
	case techspec.NameAnthropic:
		return techspec.NewBackend(techspec.BackendOptions{
			Backend: name,
			APIKey:  f.creds.Key(ctx, credentials.Anthropic, userID),
			Model:   f.cfg.Anthropic.Model,
			BaseURL: f.cfg.Anthropic.BaseURL,
		})
	case techspec.NameGemini:
		return techspec.NewBackend(techspec.BackendOptions{
			Backend: name,
			APIKey:  f.creds.Key(ctx, credentials.Gemini, userID),
			Model:   f.cfg.Gemini.Model,
		})
	default:
		return techspec.NewBackend(techspec.BackendOptions{
			Backend: name,
			APIKey:  f.creds.Key(ctx, credentials.OpenAI, userID),
			Model:   f.cfg.OpenAI.Model,
			BaseURL: f.cfg.OpenAI.BaseURL,
		})
	}
}

func (f *defaultFactories) pricer(ctx context.Context, userID string) Pricer {
	key := f.creds.Key(ctx, credentials.Perplexity, userID)
	return market.NewPriceProvider(key, f.perplexityOptions()...)
}

func (f *defaultFactories) imageFinder(ctx context.Context, userID string) ImageFinder {
	opts := imagery.DiscoveryOptions{
		SearchKey:     f.creds.Key(ctx, credentials.GoogleSearchKey, userID),
		EngineID:      f.creds.Key(ctx, credentials.GoogleSearchEngine, userID),
		Pages:         f.pages,
		MaxSources:    f.cfg.Images.MaxScrapeSources,
		MaxCandidates: f.cfg.Images.MaxCandidates,
	}
	if opts.SearchKey != "" && f.cfg.Google.BaseURL != "" {
		opts.Search = google.NewClient(opts.SearchKey, google.WithBaseURL(f.cfg.Google.BaseURL))
	}
	return imagery.NewDiscovery(opts)
}
