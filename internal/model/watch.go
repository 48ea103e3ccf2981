package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Watch is a collection entry as seen by the research pipeline.
type Watch struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"user_id"`
	Brand              string           `json:"brand"`
	Model              string           `json:"model,omitempty"`
	ReferenceNumber    string           `json:"reference_number"`
	Condition          Condition        `json:"condition"`
	Specs              SpecFields       `json:"specs,omitempty"`
	AIFetchedData      json.RawMessage  `json:"ai_fetched_data,omitempty"`
	SpecSources        []string         `json:"spec_sources,omitempty"`
	CurrentMarketValue *decimal.Decimal `json:"current_market_value,omitempty"`
	LastValuationAt    *time.Time       `json:"last_valuation_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// BrandPtr returns the brand or nil when unknown.
func (w *Watch) BrandPtr() *string {
	if w.Brand == "" {
		return nil
	}
	return &w.Brand
}

// ModelPtr returns the model or nil when unknown.
func (w *Watch) ModelPtr() *string {
	if w.Model == "" {
		return nil
	}
	return &w.Model
}

// UserAPISettings holds per-user upstream credentials. Empty fields fall
// back to the process-wide defaults.
type UserAPISettings struct {
	UserID               string    `json:"user_id"`
	PerplexityKey        string    `json:"perplexity_key,omitempty"`
	OpenAIKey            string    `json:"openai_key,omitempty"`
	AnthropicKey         string    `json:"anthropic_key,omitempty"`
	GeminiKey            string    `json:"gemini_key,omitempty"`
	GoogleSearchKey      string    `json:"google_search_key,omitempty"`
	GoogleSearchEngineID string    `json:"google_search_engine_id,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}
