// Package renderer formats fxfolio reports as markdown, for the console.
package renderer

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/etnz/fxfolio"
	md "github.com/nao1215/markdown"
)

// PortfolioMarkdown renders a portfolio report, positions sorted by key.
func PortfolioMarkdown(r *fxfolio.PortfolioReport, key fxfolio.SortKey) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Portfolio Analysis on %s", r.Date))
	doc.PlainText(fmt.Sprintf("Exchange rate: 1 %s = %s %s (%s)", r.Source, r.Rate.Value.StringFixed(2), r.Target, r.Rate.Provenance))

	t := r.Totals
	doc.H2("Summary")
	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight},
		Header:    []string{"", r.Source, r.Target},
		Rows: [][]string{
			{"Investment", t.Investment.String(), t.InvestmentConverted.String()},
			{"Current Value", md.Bold(t.CurrentValue.String()), md.Bold(t.CurrentValueConverted.String())},
			{"Gain / Loss", t.GainLoss.SignedString(), t.GainLossConverted.SignedString()},
			{"Return", t.Return.SignedString(), t.ReturnConverted.SignedString()},
			{"Day's Change", t.DailyChangeValue.SignedString(), t.DailyChangeConverted.SignedString()},
		},
	})

	metrics := slices.Clone(r.Metrics)
	fxfolio.SortMetrics(metrics, key)

	doc.H2("Positions")
	table := md.TableSet{
		Alignment: []md.TableAlignment{
			md.AlignLeft,
			md.AlignRight,
			md.AlignRight,
			md.AlignRight,
			md.AlignRight,
			md.AlignRight,
			md.AlignRight,
			md.AlignRight,
		},
		Header: []string{
			"Ticker",
			"Shares",
			"Price",
			"Day",
			fmt.Sprintf("Value (%s)", r.Target),
			fmt.Sprintf("Gain / Loss (%s)", r.Target),
			"Return",
			"Allocation",
		},
	}
	for _, m := range metrics {
		alloc := fxfolio.Percent{}
		if a, ok := t.Allocation(m.Ticker); ok {
			alloc = a.OfValue
		}
		table.Rows = append(table.Rows, []string{
			m.Ticker,
			m.Shares.String(),
			m.Current.String(),
			m.DailyChangePct.SignedString(),
			m.CurrentValueConverted.String(),
			m.GainLossConverted.SignedString(),
			m.GainLossPct.SignedString(),
			alloc.String(),
		})
	}
	doc.Table(table)

	suggestionsSection(doc, r.Suggestions)

	if len(r.Dropped) > 0 {
		doc.H2("Excluded Tickers")
		doc.PlainText("No usable quote was found for these tickers:")
		doc.BulletList(r.Dropped...)
	}
	if r.SkippedRows > 0 {
		doc.PlainText(md.Italic(fmt.Sprintf("%d invalid input rows were skipped.", r.SkippedRows)))
	}
	return doc.String()
}

func suggestionsSection(doc *md.Markdown, s fxfolio.Suggestions) {
	doc.H2("Suggestions")
	switch s.Mood {
	case fxfolio.Volatile:
		doc.PlainText(fmt.Sprintf("The market is volatile today (%s), consider holding positions.", s.DailyChange.SignedString()))
	default:
		doc.PlainText(fmt.Sprintf("The market is stable today (%s).", s.DailyChange.SignedString()))
	}

	candidate := func(m fxfolio.PositionMetrics) string {
		return fmt.Sprintf("%s: %s today, %s overall", md.Bold(m.Ticker), m.DailyChangePct.SignedString(), m.GainLossConverted.SignedString())
	}
	if len(s.BookProfit) > 0 {
		doc.H3("Consider Booking Profit")
		items := make([]string, len(s.BookProfit))
		for i, m := range s.BookProfit {
			items[i] = candidate(m)
		}
		doc.BulletList(items...)
	}
	if len(s.BuyMore) > 0 {
		doc.H3("Consider Buying More")
		items := make([]string, len(s.BuyMore))
		for i, m := range s.BuyMore {
			items[i] = candidate(m)
		}
		doc.BulletList(items...)
	}
	if len(s.BookProfit) == 0 && len(s.BuyMore) == 0 {
		doc.PlainText("No position meets the suggestion thresholds.")
	}
}
