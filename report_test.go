package fxfolio

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestNewPortfolioReport(t *testing.T) {
	positions := []Position{
		position("AAPL", 10, 175.50),
		position("ZERO", 1, 10),
		position("GONE", 1, 10),
	}
	data := MarketData{
		"AAPL": quote("AAPL", 178, 180),
		"ZERO": quote("ZERO", 0, 12),
	}
	r, err := NewPortfolioReport(positions, data, Rate{Value: D(88.57), Provenance: Fixed}, "INR", DefaultThresholds())
	if err != nil {
		t.Fatalf("NewPortfolioReport() unexpected error: %v", err)
	}
	if r.RunID == "" || r.Source != "USD" || r.Target != "INR" {
		t.Errorf("NewPortfolioReport() = run %q, %s to %s want a run id, USD to INR", r.RunID, r.Source, r.Target)
	}
	if len(r.Metrics) != 2 || r.Totals.Positions != 2 {
		t.Errorf("NewPortfolioReport() metrics = %d, totals = %d want 2", len(r.Metrics), r.Totals.Positions)
	}
	if len(r.Dropped) != 1 || r.Dropped[0] != "GONE" {
		t.Errorf("NewPortfolioReport() dropped = %v want [GONE]", r.Dropped)
	}

	var buf bytes.Buffer
	if err := EncodeReport(&buf, r); err != nil {
		t.Fatalf("EncodeReport() unexpected error: %v", err)
	}
	var got struct {
		Provenance string `json:"rate_provenance"`
		Positions  []struct {
			Ticker   string   `json:"ticker"`
			DailyPct *float64 `json:"daily_change_pct"`
		} `json:"positions"`
		Dropped []string `json:"dropped_tickers"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("EncodeReport() is not valid JSON: %v\n%s", err, &buf)
	}
	if got.Provenance != "fixed" {
		t.Errorf("rate_provenance = %q want fixed", got.Provenance)
	}
	for _, p := range got.Positions {
		if (p.DailyPct == nil) != (p.Ticker == "ZERO") {
			t.Errorf("%s daily_change_pct = %v, want null only for a zero previous close", p.Ticker, p.DailyPct)
		}
	}
}

func TestNewPortfolioReportNoQuote(t *testing.T) {
	_, err := NewPortfolioReport([]Position{position("GONE", 1, 10)}, MarketData{}, Rate{Value: D(88.57)}, "INR", DefaultThresholds())
	if !errors.Is(err, ErrNoValidPositions) {
		t.Errorf("NewPortfolioReport() error = %v want %v", err, ErrNoValidPositions)
	}
}
