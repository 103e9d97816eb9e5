package export

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/etnz/fxfolio"
	"github.com/xuri/excelize/v2"
)

// Sheets of the portfolio workbook.
const (
	SummarySheet = "Portfolio Summary"
	DetailsSheet = "Stock Details"
)

// PortfolioFileName returns the workbook name of an analysis run at t.
func PortfolioFileName(t time.Time) string {
	return fmt.Sprintf("portfolio_analysis_%s.xlsx", t.Format("20060102_150405"))
}

// percentCell is the value of an optional percentage, "N/A" when undefined.
func percentCell(p fxfolio.Percent) any {
	v, ok := p.Value()
	if !ok {
		return "N/A"
	}
	return v
}

// WritePortfolioXLSX writes the summary and per position sheets of r to path.
func WritePortfolioXLSX(path string, r *fxfolio.PortfolioReport) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(DetailsSheet); err != nil {
		return err
	}
	if err := writeSummary(f, r); err != nil {
		return fmt.Errorf("%s: %w", SummarySheet, err)
	}
	if err := writeDetails(f, r); err != nil {
		return fmt.Errorf("%s: %w", DetailsSheet, err)
	}
	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeSummary(f *excelize.File, r *fxfolio.PortfolioReport) error {
	src, dst := r.Source, r.Target
	t := r.Totals
	rows := [][]any{
		{"Metric", "Value"},
		{"Run ID", r.RunID},
		{"Date", r.Date.String()},
		{"Generated", r.Generated.Format(time.DateTime)},
		{fmt.Sprintf("Exchange Rate (%s to %s)", src, dst), r.Rate.Value.InexactFloat64()},
		{"Rate Provenance", r.Rate.Provenance.String()},
		{"Positions", t.Positions},
		{fmt.Sprintf("Total Investment (%s)", src), t.Investment.Float()},
		{fmt.Sprintf("Current Value (%s)", src), t.CurrentValue.Float()},
		{fmt.Sprintf("Gain/Loss (%s)", src), t.GainLoss.Float()},
		{fmt.Sprintf("Daily Change (%s)", src), t.DailyChangeValue.Float()},
		{"Return %", percentCell(t.Return)},
		{fmt.Sprintf("Total Investment (%s)", dst), t.InvestmentConverted.Float()},
		{fmt.Sprintf("Current Value (%s)", dst), t.CurrentValueConverted.Float()},
		{fmt.Sprintf("Gain/Loss (%s)", dst), t.GainLossConverted.Float()},
		{fmt.Sprintf("Daily Change (%s)", dst), t.DailyChangeConverted.Float()},
		{fmt.Sprintf("Return %% (%s)", dst), percentCell(t.ReturnConverted)},
		{"Market Mood", r.Suggestions.Mood.String()},
		{"Book Profit Candidates", tickers(r.Suggestions.BookProfit)},
		{"Buy More Candidates", tickers(r.Suggestions.BuyMore)},
	}
	if len(r.Dropped) > 0 {
		rows = append(rows, []any{"Excluded Tickers", strings.Join(r.Dropped, ", ")})
	}
	for i, row := range rows {
		if err := setRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}
	return styleHeader(f, SummarySheet, 2)
}

func tickers(metrics []fxfolio.PositionMetrics) string {
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = m.Ticker
	}
	return strings.Join(names, ", ")
}

func writeDetails(f *excelize.File, r *fxfolio.PortfolioReport) error {
	src, dst := r.Source, r.Target
	header := []any{
		"Ticker", "Shares",
		fmt.Sprintf("Avg Cost (%s)", src),
		fmt.Sprintf("Current Price (%s)", src),
		fmt.Sprintf("Previous Close (%s)", src),
		fmt.Sprintf("Daily Change (%s)", src),
		"Daily Change %",
		fmt.Sprintf("Investment (%s)", src),
		fmt.Sprintf("Current Value (%s)", src),
		fmt.Sprintf("Gain/Loss (%s)", src),
		"Gain/Loss %",
		fmt.Sprintf("Investment (%s)", dst),
		fmt.Sprintf("Current Value (%s)", dst),
		fmt.Sprintf("Gain/Loss (%s)", dst),
		fmt.Sprintf("Daily Change (%s)", dst),
		"Allocation %",
	}
	if err := setRow(f, DetailsSheet, 1, header); err != nil {
		return err
	}

	metrics := slices.Clone(r.Metrics)
	fxfolio.SortMetrics(metrics, fxfolio.ByValue)
	for i, m := range metrics {
		alloc := fxfolio.Percent{}
		if a, ok := r.Totals.Allocation(m.Ticker); ok {
			alloc = a.OfValue
		}
		row := []any{
			m.Ticker,
			m.Shares.InexactFloat64(),
			m.AvgCost.Float(),
			m.Current.Float(),
			m.Previous.Float(),
			m.DailyChange.Float(),
			percentCell(m.DailyChangePct),
			m.Investment.Float(),
			m.CurrentValue.Float(),
			m.GainLoss.Float(),
			percentCell(m.GainLossPct),
			m.InvestmentConverted.Float(),
			m.CurrentValueConverted.Float(),
			m.GainLossConverted.Float(),
			m.DailyChangeConverted.Float(),
			percentCell(alloc),
		}
		if err := setRow(f, DetailsSheet, i+2, row); err != nil {
			return err
		}
	}
	return styleHeader(f, DetailsSheet, len(header))
}

// WriteReportJSON writes r to path as indented JSON.
func WriteReportJSON(path string, r *fxfolio.PortfolioReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fxfolio.EncodeReport(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
