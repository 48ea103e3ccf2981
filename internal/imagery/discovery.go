// Package imagery discovers candidate watch photos and downloads a selected
// subset into blob storage.
package imagery

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/scrape"
	"github.com/sells-group/watch-research/pkg/google"
)

// ErrNotConfigured is returned by Search when the image search key or engine
// id is missing.
var ErrNotConfigured = eris.New("imagery: image search not configured")

const (
	maxSearchResults     = 10
	defaultMaxSources    = 5
	defaultMaxCandidates = 15
)

var (
	imgTagRe   = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	imgSrcRe   = regexp.MustCompile(`(?is)(?:^|\s)src\s*=\s*["']([^"']+)["']`)
	imgAltRe   = regexp.MustCompile(`(?is)(?:^|\s)alt\s*=\s*["']([^"']*)["']`)
	imageExtRe = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp)(\?|$)`)
)

// PageFetcher retrieves HTML pages for scraping.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (*scrape.Response, error)
}

// DiscoveryOptions configures a Discovery.
type DiscoveryOptions struct {
	SearchKey     string
	EngineID      string
	Search        google.Client // optional; built from SearchKey when nil
	Pages         PageFetcher
	MaxSources    int
	MaxCandidates int
}

// Discovery finds image candidates through image search or by scraping
// known source pages.
type Discovery struct {
	search        google.Client
	engineID      string
	configured    bool
	pages         PageFetcher
	maxSources    int
	maxCandidates int
}

// NewDiscovery creates a Discovery.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	d := &Discovery{
		search:        opts.Search,
		engineID:      opts.EngineID,
		configured:    opts.SearchKey != "" && opts.EngineID != "",
		pages:         opts.Pages,
		maxSources:    opts.MaxSources,
		maxCandidates: opts.MaxCandidates,
	}
	if d.search == nil && d.configured {
		d.search = google.NewClient(opts.SearchKey)
	}
	if d.maxSources <= 0 {
		d.maxSources = defaultMaxSources
	}
	if d.maxCandidates <= 0 {
		d.maxCandidates = defaultMaxCandidates
	}
	return d
}

// SearchConfigured reports whether the image search path can be used.
func (d *Discovery) SearchConfigured() bool {
	return d.configured && d.search != nil
}

// Search queries the image search API. At most 10 results are requested and
// every candidate is treated as large.
func (d *Discovery) Search(ctx context.Context, query string, limit int) ([]model.ImageCandidate, error) {
	if !d.SearchConfigured() {
		return nil, ErrNotConfigured
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	zap.L().Info("imagery: image search", zap.String("query", query), zap.Int("limit", limit))

	resp, err := d.search.ImageSearch(ctx, google.ImageSearchRequest{
		Query:    query,
		EngineID: d.engineID,
		Num:      limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "imagery: search")
	}

	out := make([]model.ImageCandidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Link == "" {
			continue
		}
		out = append(out, model.ImageCandidate{
			URL:           item.Link,
			SourcePageURL: item.ContextLink,
			AltText:       item.Title,
			EstimatedSize: model.ImageSizeLarge,
		})
	}

	zap.L().Info("imagery: image search results", zap.Int("count", len(out)))
	return out, nil
}

// Scrape extracts image candidates from the first few source pages. Pages
// that fail to load are logged and skipped. The result is capped across all
// sources and sorted by estimated size.
func (d *Discovery) Scrape(ctx context.Context, sources []string) []model.ImageCandidate {
	if len(sources) > d.maxSources {
		sources = sources[:d.maxSources]
	}

	var found []model.ImageCandidate
	seen := make(map[string]bool)

sourceLoop:
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		if d.pages == nil {
			break
		}

		page, err := d.pages.FetchPage(ctx, src)
		if err != nil {
			zap.L().Warn("imagery: source page failed",
				zap.String("url", src),
				zap.Error(err),
			)
			continue
		}

		candidates := ExtractImages(string(page.Body), src)
		if len(candidates) == 0 {
			zap.L().Debug("imagery: no images on source page", zap.String("url", src))
			continue
		}

		for _, c := range candidates {
			if seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			found = append(found, c)
			if len(found) >= d.maxCandidates {
				break sourceLoop
			}
		}
	}

	zap.L().Info("imagery: scraped candidates",
		zap.Int("sources", len(sources)),
		zap.Int("count", len(found)),
	)
	return SortCandidates(found)
}

// ExtractImages finds <img> references in html, resolves them against
// sourceURL and keeps photo-like URLs in document order.
func ExtractImages(html, sourceURL string) []model.ImageCandidate {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}

	var out []model.ImageCandidate
	for _, tag := range imgTagRe.FindAllString(html, -1) {
		m := imgSrcRe.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		abs, ok := resolve(base, strings.TrimSpace(m[1]))
		if !ok {
			continue
		}
		if !imageExtRe.MatchString(abs) || isDecorative(abs) {
			continue
		}

		var alt string
		if am := imgAltRe.FindStringSubmatch(tag); am != nil {
			alt = strings.TrimSpace(am[1])
		}

		out = append(out, model.ImageCandidate{
			URL:           abs,
			SourcePageURL: sourceURL,
			AltText:       alt,
			EstimatedSize: EstimateSize(abs),
		})
	}
	return out
}

// resolve turns a protocol-relative or root-relative reference into an
// absolute http(s) URL using the page's scheme and host.
func resolve(base *url.URL, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}

func isDecorative(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, "icon") ||
		strings.Contains(lower, "logo") ||
		strings.Contains(lower, "thumb")
}

// EstimateSize guesses an image's size class from hints in its URL.
func EstimateSize(u string) model.ImageSize {
	lower := strings.ToLower(u)
	for _, kw := range []string{"large", "original", "1200", "1920"} {
		if strings.Contains(lower, kw) {
			return model.ImageSizeLarge
		}
	}
	for _, kw := range []string{"small", "thumb", "150", "200"} {
		if strings.Contains(lower, kw) {
			return model.ImageSizeSmall
		}
	}
	return model.ImageSizeMedium
}

// SortCandidates orders candidates large first, keeping discovery order
// within a size class. The input slice is not modified.
func SortCandidates(in []model.ImageCandidate) []model.ImageCandidate {
	out := make([]model.ImageCandidate, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EstimatedSize.Rank() > out[j].EstimatedSize.Rank()
	})
	return out
}
