// Package scrape fetches dealer and manufacturer pages for image discovery
// and downloads candidate image bytes. Requests are rate limited per host
// and are never retried.
package scrape

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (compatible; watch-research/1.0)"
	defaultMaxBodyBytes = 2 << 20
	defaultRPS          = 2
)

// Options configures a PageFetcher.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	MaxBodyBytes      int64
	HTTPClient        *http.Client
}

// Response is a fetched resource.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// PageFetcher performs rate-limited GET requests.
type PageFetcher struct {
	client   *http.Client
	opts     Options
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPageFetcher creates a PageFetcher, filling zero options with defaults.
func NewPageFetcher(opts Options) *PageFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRPS
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &PageFetcher{
		client:   client,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *PageFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		burst := int(f.opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(f.opts.RequestsPerSecond), burst)
		f.limiters[host] = lim
	}
	return lim
}

// Get issues a single GET for rawURL and returns the response regardless of
// status code. Only transport failures are errors.
func (f *PageFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	resp, body, err := f.do(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	return toResponse(rawURL, resp, body), nil
}

// FetchPage retrieves an HTML page. Blocked pages, HTTP errors and empty
// bodies are reported as errors.
func (f *PageFetcher) FetchPage(ctx context.Context, rawURL string) (*Response, error) {
	resp, body, err := f.do(ctx, rawURL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	if blocked, bt := DetectBlock(resp, body); blocked {
		zap.L().Debug("scrape: page blocked",
			zap.String("url", rawURL),
			zap.String("block_type", string(bt)),
		)
		return nil, eris.Errorf("scrape: blocked (%s) %s", bt, rawURL)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, eris.Errorf("scrape: http %d for %s", resp.StatusCode, rawURL)
	}

	if len(body) == 0 {
		return nil, eris.Errorf("scrape: empty body for %s", rawURL)
	}

	return toResponse(rawURL, resp, toUTF8(resp.Header.Get("Content-Type"), body)), nil
}

// toUTF8 decodes body from the charset named in contentType. Unknown or
// missing charsets leave the body untouched.
func toUTF8(contentType string, body []byte) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	charset := params["charset"]
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		zap.L().Debug("scrape: unsupported charset", zap.String("charset", charset))
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}

func (f *PageFetcher) do(ctx context.Context, rawURL, accept string) (*http.Response, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, nil, eris.Errorf("scrape: invalid url %q", rawURL)
	}

	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return nil, nil, eris.Wrap(err, "scrape: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "scrape: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, nil, eris.Wrapf(err, "scrape: read body %s", rawURL)
	}
	return resp, body, nil
}

func toResponse(rawURL string, resp *http.Response, body []byte) *Response {
	return &Response{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
}
