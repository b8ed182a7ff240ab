// Package feed loads the forecast CSV feed and derives the rolling accuracy
// metrics shown next to the chart.
package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kaikasekai/forecastd/internal/domain"
)

// Config holds the feed location and parse parameters.
type Config struct {
	URL            string
	WarmupRows     int
	WindowRows     int
	DateColumn     string
	ActualColumn   string
	PredictColumn  string
	MAColumn       string
	ScenarioPrefix string
	Timeout        time.Duration
}

// Loader fetches and parses the forecast CSV. A failed load leaves any
// previously published state untouched; there is no retry.
type Loader struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// NewLoader creates a Loader for the given feed configuration.
func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Loader{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		logger:     logger.With(slog.String("component", "feed")),
	}
}

// Load fetches the CSV, parses it, drops the warm-up rows, and computes the
// accuracy metrics over the most recent window of valid, non-future rows.
func (l *Loader) Load(ctx context.Context) (*domain.Forecast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: fetch: unexpected status %d", resp.StatusCode)
	}

	rows, err := l.parse(resp.Body)
	if err != nil {
		return nil, err
	}

	today := l.now().UTC().Truncate(24 * time.Hour)
	f := &domain.Forecast{
		Rows:     rows,
		Metrics:  ComputeMetrics(rows, today, l.cfg.WindowRows),
		LoadedAt: l.now(),
	}

	l.logger.Info("feed loaded",
		slog.Int("rows", len(rows)),
		slog.String("mae", f.Metrics.MAE),
		slog.String("accuracy", f.Metrics.AccuracyPercent),
	)
	return f, nil
}

// parse decodes the CSV stream. The first record is the header; the set of
// scenario columns is whatever headers carry the configured prefix, so new
// models appear in the feed without a code change.
func (l *Loader) parse(r io.Reader) ([]domain.ForecastRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // tolerate ragged tails

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("feed: read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	var scenarioCols []string
	for i, name := range header {
		name = strings.TrimSpace(name)
		idx[name] = i
		if l.cfg.ScenarioPrefix != "" && strings.HasPrefix(name, l.cfg.ScenarioPrefix) {
			scenarioCols = append(scenarioCols, name)
		}
	}
	for _, required := range []string{l.cfg.DateColumn, l.cfg.ActualColumn, l.cfg.PredictColumn} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("feed: missing column %q", required)
		}
	}

	var rows []domain.ForecastRow
	n := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read row: %w", err)
		}

		// The first rows of the series are a fixed warm-up period with no
		// forecast yet; they are dropped before anything else happens.
		n++
		if n <= l.cfg.WarmupRows {
			continue
		}

		date, err := parseDate(field(rec, idx[l.cfg.DateColumn]))
		if err != nil {
			l.logger.Debug("skipping row with bad date", slog.String("value", field(rec, idx[l.cfg.DateColumn])))
			continue
		}

		row := domain.ForecastRow{Date: date}
		row.Actual, row.HasActual = parseCell(rec, idx, l.cfg.ActualColumn)
		row.Predicted, row.HasPred = parseCell(rec, idx, l.cfg.PredictColumn)
		if l.cfg.MAColumn != "" {
			row.MovingAvg, row.HasMA = parseCell(rec, idx, l.cfg.MAColumn)
		}

		for _, col := range scenarioCols {
			if v, ok := parseCell(rec, idx, col); ok {
				if row.Scenarios == nil {
					row.Scenarios = make(map[string]decimal.Decimal, len(scenarioCols))
				}
				row.Scenarios[col] = v
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseCell(rec []string, idx map[string]int, col string) (decimal.Decimal, bool) {
	i, ok := idx[col]
	if !ok {
		return decimal.Decimal{}, false
	}
	v := field(rec, i)
	if v == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	// Some feed revisions carry a full timestamp.
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(24 * time.Hour), nil
}
