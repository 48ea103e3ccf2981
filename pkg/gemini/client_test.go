package gemini

import (
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGenaiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"brand":"Seiko",`),
				genai.Text(`"caliber":"8L35"}`),
			}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 30, CandidatesTokenCount: 12},
	}

	out, err := fromGenaiResponse(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"brand":"Seiko","caliber":"8L35"}`, out.Text)
	assert.Equal(t, int32(30), out.InputTokens)
	assert.Equal(t, int32(12), out.OutputTokens)
	assert.NotEmpty(t, out.FinishReason)
}

func TestFromGenaiResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		wantErr string
	}{
		{name: "nil", resp: nil, wantErr: "no candidates"},
		{name: "no_candidates", resp: &genai.GenerateContentResponse{}, wantErr: "no candidates"},
		{
			name:    "empty_content",
			resp:    &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}},
			wantErr: "empty content",
		},
		{
			name: "non_text_parts",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}},
			}}},
			wantErr: "unexpected response format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromGenaiResponse(tt.resp)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("key").(*sdkClient)
	assert.Equal(t, "key", c.apiKey)
	assert.Equal(t, defaultModel, c.model)
	assert.Equal(t, 60*time.Second, c.timeout)

	c = NewClient("key", WithModel("gemini-1.5-flash")).(*sdkClient)
	assert.Equal(t, "gemini-1.5-flash", c.model)
}
