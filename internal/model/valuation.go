package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationRequest identifies the watch a valuation is computed for.
type ValuationRequest struct {
	ReferenceNumber string    `json:"reference_number"`
	Brand           *string   `json:"brand,omitempty"`
	Model           *string   `json:"model,omitempty"`
	Condition       Condition `json:"condition"`
}

// PriceRange is the inclusive span of the cleaned prices.
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// ValuationResult is the outcome of reducing observed prices to one market
// value. All money fields are nil when Success is false.
type ValuationResult struct {
	Success            bool              `json:"success"`
	MarketValue        *decimal.Decimal  `json:"market_value,omitempty"`
	Median             *decimal.Decimal  `json:"median,omitempty"`
	Average            *decimal.Decimal  `json:"average,omitempty"`
	PriceRange         *PriceRange       `json:"price_range,omitempty"`
	ComparableListings int               `json:"comparable_listings"`
	ConditionFactor    decimal.Decimal   `json:"condition_factor"`
	RawPrices          []decimal.Decimal `json:"raw_prices"`
	CleanedPrices      []decimal.Decimal `json:"cleaned_prices"`
	Error              string            `json:"error,omitempty"`
}

// ValuationSource identifies where a persisted valuation came from.
type ValuationSource string

const (
	ValuationSourcePerplexity ValuationSource = "perplexity_ai"
	ValuationSourceManual     ValuationSource = "manual"
)

// Valuation is an append-only valuation history entry.
type Valuation struct {
	ID                 string           `json:"id"`
	WatchID            string           `json:"watch_id"`
	Source             ValuationSource  `json:"source"`
	EstimatedValue     decimal.Decimal  `json:"estimated_value"`
	Median             *decimal.Decimal `json:"median,omitempty"`
	Average            *decimal.Decimal `json:"average,omitempty"`
	PriceRange         *PriceRange      `json:"price_range,omitempty"`
	ComparableListings int              `json:"comparable_listings"`
	Notes              json.RawMessage  `json:"notes,omitempty"`
	ValuatedAt         time.Time        `json:"valuated_at"`
	CreatedAt          time.Time        `json:"created_at"`
}

// ValuationNotes is the JSON document stored in Valuation.Notes.
type ValuationNotes struct {
	Condition       Condition         `json:"condition"`
	ConditionFactor decimal.Decimal   `json:"condition_factor"`
	RawPrices       []decimal.Decimal `json:"raw_prices"`
	CleanedPrices   []decimal.Decimal `json:"cleaned_prices"`
}

// NewValuation builds a history entry from a successful result.
func NewValuation(watchID string, cond Condition, res *ValuationResult, at time.Time) (*Valuation, error) {
	notes, err := json.Marshal(ValuationNotes{
		Condition:       cond,
		ConditionFactor: res.ConditionFactor,
		RawPrices:       res.RawPrices,
		CleanedPrices:   res.CleanedPrices,
	})
	if err != nil {
		return nil, err
	}

	v := &Valuation{
		WatchID:            watchID,
		Source:             ValuationSourcePerplexity,
		Median:             res.Median,
		Average:            res.Average,
		PriceRange:         res.PriceRange,
		ComparableListings: res.ComparableListings,
		Notes:              notes,
		ValuatedAt:         at,
	}
	if res.MarketValue != nil {
		v.EstimatedValue = *res.MarketValue
	}
	return v, nil
}
