// Package domain holds the entities shared across the forecast daemon:
// feed rows, accuracy metrics, subscription state, and the sentinel errors
// every layer reports with.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotAvailable is the sentinel reported for accuracy metrics when the
// measurement window is empty.
const NotAvailable = "N/A"

// ForecastRow is one dated row of the forecast feed. Actual, Predicted and
// MovingAvg are only meaningful when the corresponding Has flag is set; the
// feed carries empty cells for dates that have no observation yet.
// Scenarios maps each per-model prediction column (discovered at parse time)
// to its value for this date.
type ForecastRow struct {
	Date      time.Time                  `json:"date"`
	Actual    decimal.Decimal            `json:"actual"`
	Predicted decimal.Decimal            `json:"predicted"`
	MovingAvg decimal.Decimal            `json:"moving_average"`
	HasActual bool                       `json:"has_actual"`
	HasPred   bool                       `json:"has_predicted"`
	HasMA     bool                       `json:"has_moving_average"`
	Scenarios map[string]decimal.Decimal `json:"scenarios,omitempty"`
}

// AccuracyMetrics summarizes forecast quality over the most recent
// measurement window. Both values are fixed to two decimals, or NotAvailable
// when the window held no valid rows.
//
// AccuracyPercent is mean |1 - (predicted-actual)/actual| x 100: an
// accuracy-style figure where 100 means a perfect forecast. The true
// mean-absolute-percent-error variant (|(predicted-actual)/actual|) that an
// older revision used is considered a regression and is not computed.
type AccuracyMetrics struct {
	MAE             string `json:"mae"`
	AccuracyPercent string `json:"accuracy_percent"`
}

// Forecast is the loaded feed: chart rows (warm-up already dropped) plus the
// derived accuracy metrics. Immutable once built.
type Forecast struct {
	Rows     []ForecastRow   `json:"rows"`
	Metrics  AccuracyMetrics `json:"metrics"`
	LoadedAt time.Time       `json:"loaded_at"`
}
