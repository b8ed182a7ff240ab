// Package display derives the visible slice of the forecast from the
// viewer's subscription state.
package display

import (
	"time"

	"github.com/kaikasekai/forecastd/internal/domain"
)

// Window returns the rows a viewer may see: always the current calendar
// month, plus the following month when the subscription is active. Pure
// function of its inputs; rows outside the window are dropped, order is
// preserved.
func Window(rows []domain.ForecastRow, today time.Time, active bool) []domain.ForecastRow {
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := 1
	if active {
		months = 2
	}
	end := start.AddDate(0, months, 0) // exclusive

	out := make([]domain.ForecastRow, 0, len(rows))
	for _, r := range rows {
		if r.Date.Before(start) || !r.Date.Before(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RangeLabel describes the visible window for the chart caption.
func RangeLabel(active bool) string {
	if active {
		return "Current + Next month"
	}
	return "Current month"
}
