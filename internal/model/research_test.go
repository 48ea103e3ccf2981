package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	t.Parallel()
	for _, s := range AllStages() {
		got, ok := ParseStage(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseStage("valuation")
	assert.False(t, ok)
}

func TestRunReport(t *testing.T) {
	t.Parallel()
	r := &RunReport{Stages: []StageResult{
		{Name: StageSpecs, Status: StageComplete},
		{Name: StagePrices, Status: StageFailed, Error: "no prices"},
	}}

	s, ok := r.Stage(StagePrices)
	require.True(t, ok)
	assert.Equal(t, "no prices", s.Error)
	_, ok = r.Stage(StageImages)
	assert.False(t, ok)
	assert.True(t, r.Failed())

	r.Stages[1].Status = StageSkipped
	assert.False(t, r.Failed())
}

func TestImageSize_Rank(t *testing.T) {
	t.Parallel()
	assert.Greater(t, ImageSizeLarge.Rank(), ImageSizeMedium.Rank())
	assert.Greater(t, ImageSizeMedium.Rank(), ImageSizeSmall.Rank())
	assert.Equal(t, ImageSizeMedium.Rank(), ImageSize("").Rank())
}

func TestNewValuation(t *testing.T) {
	t.Parallel()
	mv := decimal.RequireFromString("13050.00")
	res := &ValuationResult{
		Success:            true,
		MarketValue:        &mv,
		ComparableListings: 5,
		ConditionFactor:    decimal.RequireFromString("0.9"),
		RawPrices:          []decimal.Decimal{decimal.NewFromInt(14500)},
		CleanedPrices:      []decimal.Decimal{decimal.NewFromInt(14500)},
	}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	v, err := NewValuation("w-1", ConditionWorn, res, at)
	require.NoError(t, err)
	assert.Equal(t, "w-1", v.WatchID)
	assert.Equal(t, ValuationSourcePerplexity, v.Source)
	assert.True(t, mv.Equal(v.EstimatedValue))
	assert.Equal(t, 5, v.ComparableListings)
	assert.Equal(t, at, v.ValuatedAt)
	assert.JSONEq(t, `{"condition":"worn","condition_factor":"0.9","raw_prices":["14500"],"cleaned_prices":["14500"]}`, string(v.Notes))
}

func TestWatch_Pointers(t *testing.T) {
	t.Parallel()
	w := &Watch{Brand: "Rolex"}
	require.NotNil(t, w.BrandPtr())
	assert.Equal(t, "Rolex", *w.BrandPtr())
	assert.Nil(t, w.ModelPtr())
}
