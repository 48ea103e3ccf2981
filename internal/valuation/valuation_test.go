package valuation

import (
	"sort"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func decs(vals ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func TestCompute_RejectsOutlier(t *testing.T) {
	prices := decs(12000, 13500, 14000, 13800, 14500, 40000, 13200)

	res := Compute("126610LN", model.ConditionWorn, prices)

	require.True(t, res.Success)
	assert.Equal(t, "13050.00", res.MarketValue.StringFixed(2))
	assert.Equal(t, decs(12000, 13200, 13500, 13800, 14000, 14500), res.CleanedPrices)
	assert.Equal(t, prices, res.RawPrices)
	assert.Equal(t, 7, res.ComparableListings)
	assert.True(t, decimal.NewFromInt(13650).Equal(*res.Median))
	assert.True(t, decimal.NewFromInt(13500).Equal(*res.Average))
	assert.True(t, decimal.NewFromInt(12000).Equal(res.PriceRange.Min))
	assert.True(t, decimal.NewFromInt(14500).Equal(res.PriceRange.Max))
	assert.Equal(t, "0.90", res.ConditionFactor.StringFixed(2))
}

func TestCompute_SmallSampleNoRejection(t *testing.T) {
	res := Compute("5711/1A", model.ConditionNew, decs(10000, 11000, 12000))

	require.True(t, res.Success)
	assert.Equal(t, "12000.00", res.MarketValue.StringFixed(2))
	assert.Len(t, res.CleanedPrices, 3)
	assert.True(t, decimal.NewFromInt(11000).Equal(*res.Median))
	assert.True(t, decimal.NewFromInt(11000).Equal(*res.Average))
}

func TestCompute_SmallSampleKeepsInputOrder(t *testing.T) {
	prices := decs(12000, 10000, 11000)

	res := Compute("x", model.ConditionNew, prices)

	require.True(t, res.Success)
	assert.Equal(t, prices, res.RawPrices)
	assert.Equal(t, prices, res.CleanedPrices)
	assert.Equal(t, "12000.00", res.MarketValue.StringFixed(2))
	assert.True(t, decimal.NewFromInt(11000).Equal(*res.Median))
}

func TestCompute_Empty(t *testing.T) {
	res := Compute("x", model.ConditionNew, nil)

	assert.False(t, res.Success)
	assert.Equal(t, "no prices", res.Error)
	assert.Nil(t, res.MarketValue)
	assert.Nil(t, res.Median)
	assert.Nil(t, res.Average)
	assert.Nil(t, res.PriceRange)
	assert.Equal(t, 0, res.ComparableListings)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	prices := decs(300, 100, 200)
	Compute("x", model.ConditionWorn, prices)
	assert.Equal(t, decs(300, 100, 200), prices)
}

func TestCompute_Rounding(t *testing.T) {
	prices := []decimal.Decimal{decimal.RequireFromString("1234.57")}
	res := Compute("x", model.ConditionUnworn, prices)
	// 1234.57 * 0.95 = 1172.8415
	assert.Equal(t, "1172.84", res.MarketValue.StringFixed(2))
}

func TestConditionFactor(t *testing.T) {
	tests := []struct {
		cond model.Condition
		want string
	}{
		{model.ConditionNew, "1.00"},
		{model.ConditionUnworn, "0.95"},
		{model.ConditionWorn, "0.90"},
		{model.ConditionHeavilyWorn, "0.75"},
		{"neu", "1.00"},
		{"stark_getragen", "0.75"},
		{"vintage", "0.90"},
		{"", "0.90"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConditionFactor(tt.cond).StringFixed(2), string(tt.cond))
	}
}

func TestMedian(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(Median(nil)))
	assert.True(t, decimal.NewFromInt(5).Equal(Median(decs(9, 5, 1))))
	assert.True(t, decimal.RequireFromString("4.5").Equal(Median(decs(9, 1, 4, 5))))
}

func TestAverage(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(Average(nil)))
	assert.True(t, decimal.NewFromInt(2).Equal(Average(decs(1, 2, 3))))
}

func TestRemoveOutliers_BoundsInclusive(t *testing.T) {
	// n=6: q1=sorted[1]=20, q3=sorted[4]=70, iqr=50, fences [-55, 145]
	cleaned := RemoveOutliers(decs(10, 20, 30, 40, 70, 71))
	assert.Len(t, cleaned, 6)

	// n=5: q1=sorted[1]=20, q3=sorted[3]=40, fences [-10, 70]; 70 sits on
	// the upper fence.
	cleaned = RemoveOutliers(decs(20, 40, 30, 10, 70))
	assert.Equal(t, decs(10, 20, 30, 40, 70), cleaned)

	cleaned = RemoveOutliers(decs(20, 40, 30, 10, 71))
	assert.Equal(t, decs(10, 20, 30, 40), cleaned)
}

// toPrices maps arbitrary quick-generated values onto positive prices.
func toPrices(raw []uint16) []decimal.Decimal {
	out := make([]decimal.Decimal, len(raw))
	for i, r := range raw {
		out[i] = decimal.NewFromInt(int64(r) + 1)
	}
	return out
}

func maxOf(ps []decimal.Decimal) decimal.Decimal {
	return decimal.Max(ps[0], ps[1:]...)
}

func TestProperty_CleanedSubsetOfRaw(t *testing.T) {
	f := func(raw []uint16) bool {
		if len(raw) == 0 {
			return true
		}
		prices := toPrices(raw)
		res := Compute("p", model.ConditionWorn, prices)
		if len(res.CleanedPrices) < 1 || len(res.CleanedPrices) > len(prices) {
			return false
		}
		remaining := make(map[string]int)
		for _, p := range prices {
			remaining[p.String()]++
		}
		for _, c := range res.CleanedPrices {
			if remaining[c.String()] == 0 {
				return false
			}
			remaining[c.String()]--
		}
		return true
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestProperty_CleanedWithinFences(t *testing.T) {
	f := func(raw []uint16) bool {
		if len(raw) < 4 {
			return true
		}
		prices := toPrices(raw)
		sorted := append([]decimal.Decimal(nil), prices...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
		n := len(sorted)
		q1, q3 := sorted[n/4], sorted[(3*n)/4]
		iqr := q3.Sub(q1)
		lower := q1.Sub(iqr.Mul(decimal.RequireFromString("1.5")))
		upper := q3.Add(iqr.Mul(decimal.RequireFromString("1.5")))

		res := Compute("p", model.ConditionWorn, prices)
		for _, c := range res.CleanedPrices {
			if c.LessThan(lower) || c.GreaterThan(upper) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestProperty_SmallSamplesUnfiltered(t *testing.T) {
	f := func(a, b, c uint16, n uint8) bool {
		prices := toPrices([]uint16{a, b, c}[:int(n)%4])
		if len(prices) == 0 {
			return true
		}
		res := Compute("p", model.ConditionNew, prices)
		if len(res.CleanedPrices) != len(res.RawPrices) {
			return false
		}
		for i := range res.RawPrices {
			if !res.CleanedPrices[i].Equal(res.RawPrices[i]) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestProperty_MarketValueIsMaxTimesFactor(t *testing.T) {
	conds := []model.Condition{
		model.ConditionNew, model.ConditionUnworn, model.ConditionWorn, model.ConditionHeavilyWorn, "unknown",
	}
	f := func(raw []uint16) bool {
		if len(raw) == 0 {
			return true
		}
		for _, c := range conds {
			res := Compute("p", c, toPrices(raw))
			want := maxOf(res.CleanedPrices).Mul(ConditionFactor(c)).Round(2)
			if !res.MarketValue.Equal(want) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, nil))
	assert.Equal(t, "0.90", ConditionFactor("unknown").StringFixed(2))
}

func TestProperty_MedianOrderInvariantAndBounded(t *testing.T) {
	f := func(raw []uint16) bool {
		if len(raw) == 0 {
			return true
		}
		prices := toPrices(raw)
		reversed := make([]decimal.Decimal, len(prices))
		for i, p := range prices {
			reversed[len(prices)-1-i] = p
		}
		a := Compute("p", model.ConditionWorn, prices)
		b := Compute("p", model.ConditionWorn, reversed)
		if !a.Median.Equal(*b.Median) {
			return false
		}
		lo, hi := a.PriceRange.Min, a.PriceRange.Max
		return a.Median.GreaterThanOrEqual(lo) && a.Median.LessThanOrEqual(hi) &&
			a.Average.GreaterThanOrEqual(lo) && a.Average.LessThanOrEqual(hi)
	}
	require.NoError(t, quick.Check(f, nil))
}
