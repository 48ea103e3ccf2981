package google

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const maxResultsPerPage = 10

// Client performs Google Custom Search operations.
type Client interface {
	ImageSearch(ctx context.Context, req ImageSearchRequest) (*ImageSearchResponse, error)
}

// ImageSearchRequest describes an image search against a programmable
// search engine.
type ImageSearchRequest struct {
	Query    string
	EngineID string
	Num      int // clamped to [1, 10]
}

// ImageSearchResponse holds the image hits in API order.
type ImageSearchResponse struct {
	Items []ImageItem
}

// ImageItem is one image hit.
type ImageItem struct {
	Link        string
	Title       string
	DisplayLink string
	ContextLink string
	MimeType    string
	Width       int64
	Height      int64
}

// Option configures the client.
type Option func(*cseClient)

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(url string) Option {
	return func(c *cseClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *cseClient) {
		c.http = hc
	}
}

type cseClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Custom Search API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &cseClient{
		apiKey: apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *cseClient) ImageSearch(ctx context.Context, req ImageSearchRequest) (*ImageSearchResponse, error) {
	if req.Query == "" {
		return nil, eris.New("google: image search: empty query")
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(c.http)}
	if c.baseURL != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(c.baseURL))
	}
	svc, err := customsearch.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "google: create customsearch service")
	}

	num := req.Num
	if num <= 0 || num > maxResultsPerPage {
		num = maxResultsPerPage
	}

	// A custom http.Client bypasses option.WithAPIKey, so the key travels
	// as a query parameter.
	res, err := svc.Cse.List().
		Q(req.Query).
		Cx(req.EngineID).
		SearchType("image").
		Num(int64(num)).
		ImgSize("large").
		Safe("off").
		Context(ctx).
		Do(googleapi.QueryParameter("key", c.apiKey))
	if err != nil {
		return nil, eris.Wrap(err, "google: image search")
	}

	out := &ImageSearchResponse{Items: make([]ImageItem, 0, len(res.Items))}
	for _, it := range res.Items {
		if it == nil || it.Link == "" {
			continue
		}
		item := ImageItem{
			Link:        it.Link,
			Title:       it.Title,
			DisplayLink: it.DisplayLink,
			MimeType:    it.Mime,
		}
		if it.Image != nil {
			item.ContextLink = it.Image.ContextLink
			item.Width = it.Image.Width
			item.Height = it.Image.Height
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}
