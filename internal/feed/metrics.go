package feed

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kaikasekai/forecastd/internal/domain"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ComputeMetrics derives the rolling accuracy metrics from the feed rows.
//
// The measurement set is the order-preserving subsequence of rows that have
// numeric actual and predicted values and are dated on or before today; the
// window is the last `window` rows of that subsequence, not the raw tail.
// Rows with a zero actual are excluded (the percent metric divides by it).
//
// An empty window yields the "N/A" sentinel for both values.
func ComputeMetrics(rows []domain.ForecastRow, today time.Time, window int) domain.AccuracyMetrics {
	valid := make([]domain.ForecastRow, 0, len(rows))
	for _, r := range rows {
		if !r.HasActual || !r.HasPred || r.Actual.IsZero() {
			continue
		}
		if r.Date.After(today) {
			continue
		}
		valid = append(valid, r)
	}
	if len(valid) > window {
		valid = valid[len(valid)-window:]
	}

	if len(valid) == 0 {
		return domain.AccuracyMetrics{
			MAE:             domain.NotAvailable,
			AccuracyPercent: domain.NotAvailable,
		}
	}

	maeSum := decimal.Zero
	accSum := decimal.Zero
	for _, r := range valid {
		diff := r.Predicted.Sub(r.Actual)
		maeSum = maeSum.Add(diff.Abs())
		// Accuracy-style percent: |1 - relative error|, 1.0 = perfect.
		accSum = accSum.Add(one.Sub(diff.Div(r.Actual)).Abs())
	}

	n := decimal.NewFromInt(int64(len(valid)))
	return domain.AccuracyMetrics{
		MAE:             maeSum.Div(n).StringFixed(2),
		AccuracyPercent: accSum.Div(n).Mul(hundred).StringFixed(2),
	}
}
