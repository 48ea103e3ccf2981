package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

const (
	defaultModel   = "gemini-1.5-pro"
	defaultTimeout = 60 * time.Second
)

// Client generates text with a Gemini model.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a single-turn generation request.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float32
	MaxTokens   *int32
	JSON        bool
}

// GenerateResponse carries the first candidate's text.
type GenerateResponse struct {
	Model        string
	Text         string
	FinishReason string
	InputTokens  int32
	OutputTokens int32
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithClientOptions appends Google API client options, e.g. a custom endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *sdkClient) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

type sdkClient struct {
	apiKey     string
	model      string
	timeout    time.Duration
	clientOpts []option.ClientOption
}

// NewClient creates a Gemini client. A genai connection is opened per call.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		apiKey:  apiKey,
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.clientOpts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	defer client.Close() //nolint:errcheck

	name := req.Model
	if name == "" {
		name = c.model
	}
	model := client.GenerativeModel(name)
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}
	if req.MaxTokens != nil {
		model.SetMaxOutputTokens(*req.MaxTokens)
	}
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	out, err := fromGenaiResponse(resp)
	if err != nil {
		return nil, err
	}
	out.Model = name
	return out, nil
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) (*GenerateResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, eris.New("gemini: no candidates returned")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, eris.New("gemini: empty content returned")
	}

	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return nil, eris.New("gemini: unexpected response format")
	}

	out := &GenerateResponse{
		Text:         sb.String(),
		FinishReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return out, nil
}
