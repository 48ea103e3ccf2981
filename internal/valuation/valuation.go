// Package valuation reduces observed market prices to a single value.
package valuation

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
)

// minSamplesForOutliers is the smallest sample on which IQR rejection runs.
const minSamplesForOutliers = 4

var (
	iqrMultiplier = decimal.RequireFromString("1.5")
	defaultFactor = decimal.RequireFromString("0.90")
	two           = decimal.NewFromInt(2)
)

var conditionFactors = map[model.Condition]decimal.Decimal{
	model.ConditionNew:         decimal.RequireFromString("1.00"),
	model.ConditionUnworn:      decimal.RequireFromString("0.95"),
	model.ConditionWorn:        decimal.RequireFromString("0.90"),
	model.ConditionHeavilyWorn: decimal.RequireFromString("0.75"),
}

// ConditionFactor returns the multiplier for c. German labels are accepted;
// anything unrecognized gets 0.90.
func ConditionFactor(c model.Condition) decimal.Decimal {
	canonical, _ := model.ParseCondition(string(c))
	if f, ok := conditionFactors[canonical]; ok {
		return f
	}
	return defaultFactor
}

// Compute derives a market value from prices. The result owns copies of the
// input; prices is not modified.
func Compute(ref string, cond model.Condition, prices []decimal.Decimal) *model.ValuationResult {
	factor := ConditionFactor(cond)
	log := zap.L().With(
		zap.String("reference_number", ref),
		zap.String("condition", string(cond)),
		zap.Int("price_count", len(prices)),
	)

	if len(prices) == 0 {
		log.Debug("valuation: no prices")
		return &model.ValuationResult{
			Success:         false,
			ConditionFactor: factor,
			RawPrices:       []decimal.Decimal{},
			CleanedPrices:   []decimal.Decimal{},
			Error:           "no prices",
		}
	}

	raw := append([]decimal.Decimal(nil), prices...)
	cleaned := RemoveOutliers(prices)

	lo, hi := cleaned[0], cleaned[len(cleaned)-1]
	median := Median(cleaned)
	average := Average(cleaned)
	marketValue := hi.Mul(factor).Round(2)

	log.Debug("valuation: computed",
		zap.Int("cleaned_count", len(cleaned)),
		zap.String("max", hi.String()),
		zap.String("factor", factor.String()),
		zap.String("market_value", marketValue.StringFixed(2)),
	)

	return &model.ValuationResult{
		Success:            true,
		MarketValue:        &marketValue,
		Median:             &median,
		Average:            &average,
		PriceRange:         &model.PriceRange{Min: lo, Max: hi},
		ComparableListings: len(raw),
		ConditionFactor:    factor,
		RawPrices:          raw,
		CleanedPrices:      cleaned,
	}
}

// RemoveOutliers returns the prices inside the inclusive Tukey fences, in
// ascending order. Quartiles are taken at indices floor(n*0.25) and
// floor(n*0.75) of the sorted sample. Fewer than four prices are returned
// unchanged in input order, as is the whole sample when the fences would
// reject everything.
func RemoveOutliers(prices []decimal.Decimal) []decimal.Decimal {
	n := len(prices)
	if n < minSamplesForOutliers {
		return append([]decimal.Decimal(nil), prices...)
	}

	sorted := sortedCopy(prices)

	q1 := sorted[n/4]
	q3 := sorted[(n*3)/4]
	iqr := q3.Sub(q1)
	lower := q1.Sub(iqr.Mul(iqrMultiplier))
	upper := q3.Add(iqr.Mul(iqrMultiplier))

	cleaned := make([]decimal.Decimal, 0, n)
	for _, p := range sorted {
		if p.GreaterThanOrEqual(lower) && p.LessThanOrEqual(upper) {
			cleaned = append(cleaned, p)
		}
	}

	zap.L().Debug("valuation: outliers removed",
		zap.Int("original_count", n),
		zap.Int("clean_count", len(cleaned)),
		zap.String("q1", q1.String()),
		zap.String("q3", q3.String()),
		zap.String("lower", lower.String()),
		zap.String("upper", upper.String()),
	)

	if len(cleaned) == 0 {
		return append([]decimal.Decimal(nil), prices...)
	}
	return cleaned
}

// Median returns the middle value, or the mean of the two middle values for
// an even count. Zero for an empty slice.
func Median(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := sortedCopy(values)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return sorted[mid-1].Add(sorted[mid]).Div(two)
	}
	return sorted[mid]
}

// Average returns the arithmetic mean. Zero for an empty slice.
func Average(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}

func sortedCopy(values []decimal.Decimal) []decimal.Decimal {
	out := append([]decimal.Decimal(nil), values...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}
