package fxfolio

import (
	"encoding/json"
	"io"
	"time"

	"github.com/etnz/fxfolio/date"
	"github.com/google/uuid"
)

// PortfolioReport gathers everything produced by one analysis run.
type PortfolioReport struct {
	RunID       string
	Date        date.Date
	Generated   time.Time
	Source      string // source currency
	Target      string // converted currency
	Rate        Rate
	Metrics     []PositionMetrics // by converted current value, descending
	Totals      PortfolioTotals
	Suggestions Suggestions
	Dropped     []string // tickers without a usable quote
	SkippedRows int      // input rows dropped by the loader
}

// NewPortfolioReport computes metrics, totals and suggestions for positions.
// It returns ErrNoValidPositions if no position has a quote.
func NewPortfolioReport(positions []Position, data MarketData, rate Rate, to string, th Thresholds) (*PortfolioReport, error) {
	metrics, missing, err := ComputeAll(positions, data, rate, to)
	if err != nil {
		return nil, err
	}
	r := &PortfolioReport{
		RunID:     uuid.NewString(),
		Date:      date.Today(),
		Generated: time.Now(),
		Source:    positions[0].AvgCost.Currency(),
		Target:    to,
		Rate:      rate,
		Metrics:   metrics,
		Dropped:   missing,
	}
	r.Totals = Aggregate(metrics)
	r.Suggestions = Suggest(metrics, th)
	return r, nil
}

func (r *PortfolioReport) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("run_id", r.RunID)
	w.Append("date", r.Date)
	w.Append("generated", r.Generated.Format(time.RFC3339))
	w.Append("source_currency", r.Source)
	w.Append("target_currency", r.Target)
	w.Append("exchange_rate", r.Rate.Value)
	w.Append("rate_provenance", r.Rate.Provenance)
	w.Append("positions", r.Metrics)
	w.Append("totals", r.Totals)
	w.Append("suggestions", r.Suggestions)
	w.Optional("dropped_tickers", r.Dropped)
	w.Optional("skipped_rows", r.SkippedRows)
	return w.MarshalJSON()
}

// EncodeReport writes r as indented JSON.
func EncodeReport(w io.Writer, r *PortfolioReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
