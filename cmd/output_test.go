package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/watch-research/internal/model"
)

func init() {
	color.NoColor = true
}

func TestPrintReport(t *testing.T) {
	mv := decimal.RequireFromString("11875.00")
	median := decimal.RequireFromString("12500")
	report := &model.RunReport{
		WatchID: "w-1",
		Stages: []model.StageResult{
			{Name: model.StageSpecs, Status: model.StageComplete, DurationMS: 1200},
			{Name: model.StagePrices, Status: model.StageComplete, DurationMS: 900},
			{Name: model.StageImages, Status: model.StageFailed, Error: "research: no image candidates found"},
		},
		Spec: &model.TechnicalSpecResult{
			Success:  true,
			Provider: "perplexity",
			Fields:   model.SpecFields{"caliber": "3235", "junk": 1},
			Sources:  []string{"https://a.example.com"},
		},
		Valuation: &model.ValuationResult{
			Success:            true,
			MarketValue:        &mv,
			Median:             &median,
			ComparableListings: 5,
			ConditionFactor:    decimal.RequireFromString("0.95"),
		},
		Images: []model.WatchImage{{Path: "watch-images/rolex-126610LN-1.jpg", IsPrimary: true}},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "watch w-1")
	assert.Contains(t, out, "specs   COMPLETE (1200ms)")
	assert.Contains(t, out, "images  FAILED")
	assert.Contains(t, out, "research: no image candidates found")
	assert.Contains(t, out, "specs via perplexity: 1 fields, 1 sources")
	assert.Contains(t, out, "market value 11875.00 (median 12500.00, 5 listings, factor 0.95)")
	assert.Contains(t, out, "watch-images/rolex-126610LN-1.jpg [primary]")
}

func TestPrintWatch(t *testing.T) {
	mv := decimal.NewFromInt(9000)
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printWatch(&buf, &model.Watch{
		ID:                 "w-2",
		UserID:             "user-1",
		Brand:              "Tudor",
		ReferenceNumber:    "79030N",
		Condition:          model.ConditionWorn,
		Specs:              model.SpecFields{"caliber": "MT5402"},
		CurrentMarketValue: &mv,
		LastValuationAt:    &at,
	})
	out := buf.String()

	assert.Contains(t, out, "w-2 Tudor  79030N")
	assert.Contains(t, out, "value      9000.00")
	assert.Contains(t, out, "valued at  2026-03-01 10:30")
	assert.Contains(t, out, "caliber")
	assert.Contains(t, out, "MT5402")
}
