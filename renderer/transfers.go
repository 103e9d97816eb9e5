package renderer

import (
	"bytes"
	"fmt"

	"github.com/etnz/fxfolio"
	md "github.com/nao1215/markdown"
)

// TransfersMarkdown renders the summary of a transfer conversion.
// Days converted at the fallback rate are listed, they deserve a manual check.
func TransfersMarkdown(s fxfolio.TransferSummary, transfers []fxfolio.ConvertedTransfer, skipped int) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Transfers Conversion")
	if s.Count == 0 {
		doc.PlainText("No transfer to convert.")
		return doc.String()
	}

	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Header:    []string{"Transfers", fmt.Sprint(s.Count)},
		Rows: [][]string{
			{fmt.Sprintf("Total (%s)", s.Total.Currency()), s.Total.String()},
			{fmt.Sprintf("Total (%s)", s.TotalConverted.Currency()), md.Bold(s.TotalConverted.String())},
			{"Average Rate", s.AvgRate.StringFixed(4)},
			{"Lowest Rate", s.MinRate.StringFixed(4)},
			{"Highest Rate", s.MaxRate.StringFixed(4)},
		},
	})

	var fallbacks []string
	seen := make(map[string]bool)
	for _, t := range transfers {
		day := t.Date.String()
		if t.Rate.Provenance != fxfolio.Fallback || seen[day] {
			continue
		}
		seen[day] = true
		fallbacks = append(fallbacks, fmt.Sprintf("%s at %s", day, t.Rate.Value.StringFixed(2)))
	}
	if len(fallbacks) > 0 {
		doc.H2("Fallback Rates")
		doc.PlainText(fmt.Sprintf("%d transfers were converted at the fallback rate:", s.Fallbacks))
		doc.BulletList(fallbacks...)
	}
	if skipped > 0 {
		doc.PlainText(md.Italic(fmt.Sprintf("%d invalid input rows were skipped.", skipped)))
	}
	return doc.String()
}
