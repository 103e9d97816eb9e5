package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/export"
	"github.com/etnz/fxfolio/renderer"
	"github.com/etnz/fxfolio/telemetry"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// analyzeOptions are the options of one analysis run.
type analyzeOptions struct {
	input    string
	outDir   string
	jsonFile string
	sort     fxfolio.SortKey
	live     bool
}

// analyzeCmd holds the flags for the 'analyze' subcommand.
type analyzeCmd struct {
	outDir   string
	jsonFile string
	sort     string
	live     bool
}

func (*analyzeCmd) Name() string { return "analyze" }
func (*analyzeCmd) Synopsis() string {
	return "analyze positions at their current price, in both currencies"
}
func (*analyzeCmd) Usage() string {
	return `fxf analyze [-sort value|investment|daily|ticker] [-live] [-json <file>] [-o <dir>] [<positions file>]

  Reads positions (.csv or .xlsx, default portfolio.csv) with the columns "ticker",
  "shares_held" and "avg_cost_usd", fetches the last two closes of every ticker and reports
  gains, daily changes, allocation and suggestions, converted at the fixed rate (or the live
  rate with -live).

  The report is printed and saved to portfolio_analysis_<timestamp>.xlsx.
  Tickers without price data are excluded and listed.
`
}

func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outDir, "o", ".", "Directory of the output workbook")
	f.StringVar(&c.jsonFile, "json", "", "Also write the report as JSON to this file")
	f.StringVar(&c.sort, "sort", string(fxfolio.ByValue), "Sort order of the positions: value, investment, daily or ticker")
	f.BoolVar(&c.live, "live", false, "Use the live exchange rate instead of the fixed one")
}

// options validates the flags.
func (c *analyzeCmd) options(f *flag.FlagSet) (analyzeOptions, error) {
	opts := analyzeOptions{
		input:    "portfolio.csv",
		outDir:   c.outDir,
		jsonFile: c.jsonFile,
		live:     c.live,
	}
	if f.NArg() > 1 {
		return opts, fmt.Errorf("at most one positions file expected, got %d", f.NArg())
	}
	if f.NArg() == 1 {
		opts.input = f.Arg(0)
	}
	key, err := fxfolio.ParseSortKey(c.sort)
	if err != nil {
		return opts, err
	}
	opts.sort = key
	return opts, nil
}

func (c *analyzeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	opts, err := c.options(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		return subcommands.ExitUsageError
	}
	e, err := loadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	if _, err := e.analyze(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing %q: %v\n", opts.input, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// analyze runs one analysis and returns the report it printed and saved.
func (e *env) analyze(ctx context.Context, opts analyzeOptions) (*fxfolio.PortfolioReport, error) {
	defer e.done("analyze", e.now())
	cur := e.cfg.Currency

	positions, skipped, err := fxfolio.LoadPositions(opts.input, cur.Source)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		e.log.Warnw("invalid position rows skipped", "file", opts.input, "rows", skipped)
	}

	tickers := make([]string, len(positions))
	for i, p := range positions {
		tickers[i] = p.Ticker
	}
	e.log.Infow("fetching quotes", "tickers", len(tickers))
	quotes, err := e.quoteFetcher().FetchAll(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("fetching quotes: %w", err)
	}

	rate := e.scalarRate(ctx, opts.live)
	r, err := fxfolio.NewPortfolioReport(positions, quotes.Quotes, rate, cur.Target, e.cfg.Suggestions)
	if err != nil {
		return nil, err
	}
	r.Generated = e.now()
	r.SkippedRows = skipped

	path := filepath.Join(opts.outDir, export.PortfolioFileName(r.Generated))
	if err := export.WritePortfolioXLSX(path, r); err != nil {
		return nil, err
	}
	e.log.Infow("analysis saved", "file", path, "run", r.RunID)
	if opts.jsonFile != "" {
		if err := export.WriteReportJSON(opts.jsonFile, r); err != nil {
			return nil, err
		}
		e.log.Infow("report saved", "file", opts.jsonFile)
	}

	e.printMarkdown(renderer.PortfolioMarkdown(r, opts.sort))
	return r, nil
}

// scalarRate returns the rate applied to every position.
// A live rate that cannot be fetched falls back to the fixed one.
func (e *env) scalarRate(ctx context.Context, live bool) fxfolio.Rate {
	fixed := fxfolio.Rate{Value: decimal.NewFromFloat(e.cfg.Currency.FixedRate), Provenance: fxfolio.Fixed}
	if !live {
		return fixed
	}
	src, ok := e.source.(fxfolio.LiveRateSource)
	if !ok {
		e.log.Warnw("provider has no live rate, using the fixed rate", "provider", e.cfg.Provider)
		return fixed
	}
	e.metrics.Attempt(telemetry.KindLive)
	v, err := src.LatestRate(ctx, e.cfg.Currency.Pair)
	if err != nil {
		e.metrics.Failure(telemetry.KindLive)
		e.log.Warnw("cannot fetch live rate, using the fixed rate", "pair", e.cfg.Currency.Pair, "error", err)
		return fixed
	}
	return fxfolio.Rate{Value: decimal.NewFromFloat(v).Round(4), Provenance: fxfolio.Live}
}
