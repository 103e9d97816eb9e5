package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/export"
	"github.com/etnz/fxfolio/renderer"
	"github.com/google/subcommands"
)

// convertCmd holds the flags for the 'convert' subcommand.
type convertCmd struct {
	outDir string
}

func (*convertCmd) Name() string { return "convert" }
func (*convertCmd) Synopsis() string {
	return "convert transfers at the exchange rate of their date"
}
func (*convertCmd) Usage() string {
	return `fxf convert [-o <dir>] [<transfers file>]

  Reads a transfers table (.csv or .xlsx, default Transfers.xlsx) with at least the columns
  "Date" and "Cash Amount (in USD)", fetches the exchange rate of every transfer date and
  writes the table with the rate and the converted amount to transfers_with_inr.csv and
  transfers_with_inr.xlsx.

  A date without any rate in the provider window is converted at the fallback rate.
`
}

func (c *convertCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outDir, "o", ".", "Directory of the output files")
}

func (c *convertCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "convert takes at most one transfers file")
		return subcommands.ExitUsageError
	}
	input := "Transfers.xlsx"
	if f.NArg() == 1 {
		input = f.Arg(0)
	}

	e, err := loadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := e.convert(ctx, input, c.outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error converting %q: %v\n", input, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// convert converts the transfers of input and writes the results in outDir.
func (e *env) convert(ctx context.Context, input, outDir string) error {
	defer e.done("convert", e.now())
	cur := e.cfg.Currency

	table, skipped, err := fxfolio.LoadTransfers(input, cur.Source)
	if err != nil {
		return err
	}
	if skipped > 0 {
		e.log.Warnw("invalid transfer rows skipped", "file", input, "rows", skipped)
	}

	start := time.Now()
	days := table.Dates()
	e.log.Infow("fetching exchange rates", "pair", cur.Pair, "dates", len(days))
	rates, err := e.rateFetcher().FetchAll(ctx, days)
	if err != nil {
		return fmt.Errorf("fetching rates: %w", err)
	}
	e.log.Debugw("exchange rates fetched", "elapsed", time.Since(start))

	converted, err := fxfolio.ConvertTransfers(table.Transfers, rates, cur.Target)
	if err != nil {
		return err
	}

	sheet := export.NewTransferSheet(table.Header, converted, cur.Source, cur.Target)
	csvPath := filepath.Join(outDir, export.TransfersCSV)
	if err := sheet.WriteCSV(csvPath); err != nil {
		return err
	}
	xlsxPath := filepath.Join(outDir, export.TransfersXLSX)
	if err := sheet.WriteXLSX(xlsxPath); err != nil {
		return err
	}
	e.log.Infow("results saved", "csv", csvPath, "xlsx", xlsxPath)

	e.printMarkdown(renderer.TransfersMarkdown(fxfolio.SummarizeTransfers(converted), converted, skipped))
	return nil
}
