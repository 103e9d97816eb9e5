package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/config"
	"github.com/etnz/fxfolio/date"
	"github.com/etnz/fxfolio/logger"
	"github.com/etnz/fxfolio/telemetry"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// fakeSource serves canned closes, and counts the symbols it was asked for.
type fakeSource struct {
	mu      sync.Mutex
	rates   map[date.Date]float64 // daily closes of any pair
	closes  map[string][]float64  // recent closes by ticker
	live    float64
	liveErr error
	asked   []string
}

func (s *fakeSource) HistoricalSeries(_ context.Context, symbol string, from, to date.Date) (fxfolio.Series, error) {
	res := fxfolio.Series{Symbol: symbol}
	for d := from; !d.After(to); d = d.Add(1) {
		if v, ok := s.rates[d]; ok {
			res.Closes.Append(d, v)
		}
	}
	return res, nil
}

func (s *fakeSource) RecentSeries(_ context.Context, symbols []string, lookbackDays int) ([]fxfolio.Series, error) {
	s.mu.Lock()
	s.asked = append(s.asked, symbols...)
	s.mu.Unlock()
	var res []fxfolio.Series
	for _, sym := range symbols {
		closes, ok := s.closes[sym]
		if !ok {
			continue
		}
		series := fxfolio.Series{Symbol: sym}
		from := date.New(2024, 1, 5).Add(1 - len(closes))
		for i, c := range closes {
			series.Closes.Append(from.Add(i), c)
		}
		res = append(res, series)
	}
	return res, nil
}

func (s *fakeSource) LatestRate(context.Context, string) (float64, error) {
	return s.live, s.liveErr
}

var testNow = time.Date(2024, 3, 15, 9, 5, 7, 0, time.UTC)

// testEnv returns an env on src, without delays, printing raw markdown to the returned buffer.
func testEnv(t *testing.T, src fxfolio.Source) (*env, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := &config.Config{
		Provider: config.Yahoo,
		Currency: config.CurrencyConfig{
			Source:       "USD",
			Target:       "INR",
			Pair:         "USDINR=X",
			FixedRate:    88.57,
			FallbackRate: 83.0,
		},
		Rates:       config.RatesConfig{Attempts: 2, WindowBefore: 5, WindowAfter: 1, Concurrency: 1},
		Quotes:      config.QuotesConfig{BatchSize: 10, Attempts: 2, LookbackDays: 5},
		Suggestions: fxfolio.DefaultThresholds(),
		Metrics:     config.MetricsConfig{Textfile: filepath.Join(t.TempDir(), "fxfolio.prom")},
	}
	return &env{
		cfg:     cfg,
		log:     logger.Nop(),
		metrics: telemetry.New(),
		source:  src,
		out:     &out,
		raw:     true,
		now:     func() time.Time { return testNow },
	}, &out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestConvert(t *testing.T) {
	src := &fakeSource{rates: map[date.Date]float64{
		date.New(2023, 12, 29): 83.2,  // last close before 2024-01-01
		date.New(2024, 1, 15):  83.05, // exact
	}}
	e, out := testEnv(t, src)
	input := writeFile(t, "transfers.csv", fxfolio.SampleTransfers+"not a date,Wire transfer,10\n")
	dir := t.TempDir()

	if err := e.convert(context.Background(), input, dir); err != nil {
		t.Fatalf("convert() unexpected error: %v", err)
	}

	got := readCSV(t, filepath.Join(dir, "transfers_with_inr.csv"))
	want := [][]string{
		{"Date", "Activity", "Cash Amount (in USD)", "Exchange Rate (USD to INR)", "Cash Amount (in INR)"},
		{"2024-01-01", "Wire transfer", "100.00", "83.2000", "8320.00"},
		{"2024-01-15", "Wire transfer", "2500.00", "83.0500", "207625.00"},
		{"2024-02-03", "Wire transfer", "1200.50", "83.0000", "99641.50"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("convert() csv = %v want %v", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "transfers_with_inr.xlsx")); err != nil {
		t.Errorf("convert() did not write the workbook: %v", err)
	}

	for _, s := range []string{"Fallback Rates", "2024-02-03 at 83.00", "1 invalid input rows"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("convert() output does not contain %q:\n%s", s, out)
		}
	}

	metrics, err := os.ReadFile(e.cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	for _, s := range []string{"fxfolio_rate_fallbacks_total 1", `fxfolio_run_duration_seconds{command="convert"}`} {
		if !strings.Contains(string(metrics), s) {
			t.Errorf("metrics do not contain %q:\n%s", s, metrics)
		}
	}
}

func TestConvertMissingColumns(t *testing.T) {
	e, _ := testEnv(t, &fakeSource{})
	input := writeFile(t, "transfers.csv", "Day,Amount\n2024-01-01,100\n")

	err := e.convert(context.Background(), input, t.TempDir())
	if !fxfolio.IsInputError(err, fxfolio.MissingColumns) {
		t.Errorf("convert() error = %v want missing columns", err)
	}
}

func positionsSource() *fakeSource {
	return &fakeSource{closes: map[string][]float64{
		"AAPL": {178, 180},
		"MSFT": {375, 370},
	}}
}

func TestAnalyze(t *testing.T) {
	src := positionsSource()
	e, out := testEnv(t, src)
	input := writeFile(t, "portfolio.csv", fxfolio.SamplePositions+"NEWCO,1,10\n,3,1\n")
	dir := t.TempDir()
	opts := analyzeOptions{
		input:    input,
		outDir:   dir,
		jsonFile: filepath.Join(dir, "report.json"),
		sort:     fxfolio.ByTicker,
	}

	r, err := e.analyze(context.Background(), opts)
	if err != nil {
		t.Fatalf("analyze() unexpected error: %v", err)
	}
	if len(r.Metrics) != 2 {
		t.Errorf("analyze() metrics = %d want 2", len(r.Metrics))
	}
	if !reflect.DeepEqual(r.Dropped, []string{"NEWCO"}) {
		t.Errorf("analyze() dropped = %v want [NEWCO]", r.Dropped)
	}
	if r.SkippedRows != 1 {
		t.Errorf("analyze() skipped rows = %d want 1", r.SkippedRows)
	}
	if r.Rate.Provenance != fxfolio.Fixed || !r.Rate.Value.Equal(decimal.RequireFromString("88.57")) {
		t.Errorf("analyze() rate = %v want 88.57 (fixed)", r.Rate)
	}
	// one batch, then NEWCO alone for each attempt
	if want := []string{"AAPL", "MSFT", "NEWCO", "NEWCO", "NEWCO"}; !reflect.DeepEqual(src.asked, want) {
		t.Errorf("analyze() requested %v want %v", src.asked, want)
	}

	for _, name := range []string{"portfolio_analysis_20240315_090507.xlsx", "report.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("analyze() did not write %s: %v", name, err)
		}
	}
	for _, s := range []string{"Excluded Tickers", "NEWCO", "88.57 INR (fixed)"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("analyze() output does not contain %q:\n%s", s, out)
		}
	}
	if strings.Index(out.String(), "| AAPL") > strings.Index(out.String(), "| MSFT") {
		t.Errorf("analyze() positions are not sorted by ticker:\n%s", out)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string // empty for a missing file
		check   func(error) bool
	}{
		{
			name:  "missing file",
			check: func(err error) bool { return fxfolio.IsInputError(err, fxfolio.FileNotFound) },
		},
		{
			name:    "no valid rows",
			content: "ticker,shares_held,avg_cost_usd\nAAPL,0,10\n",
			check:   func(err error) bool { return fxfolio.IsInputError(err, fxfolio.NoValidRows) },
		},
		{
			name:    "no quote at all",
			content: "ticker,shares_held,avg_cost_usd\nNEWCO,1,10\n",
			check:   func(err error) bool { return errors.Is(err, fxfolio.ErrNoValidPositions) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testEnv(t, positionsSource())
			input := filepath.Join(t.TempDir(), "portfolio.csv")
			if tt.content != "" {
				input = writeFile(t, "portfolio.csv", tt.content)
			}
			_, err := e.analyze(context.Background(), analyzeOptions{input: input, outDir: t.TempDir(), sort: fxfolio.ByValue})
			if !tt.check(err) {
				t.Errorf("analyze() error = %v", err)
			}
		})
	}
}

func TestQuoteFetcherPolicies(t *testing.T) {
	e, _ := testEnv(t, &fakeSource{})
	e.cfg.Quotes.Attempts = 3
	e.cfg.Quotes.RetryDelay = 2 * time.Second
	e.cfg.Quotes.SingleDelay = time.Second

	f := e.quoteFetcher()
	if d1, d2 := f.BatchPolicy.Delay(1), f.BatchPolicy.Delay(2); d1 != 2*time.Second || d2 != 2*time.Second {
		t.Errorf("batch delays = %v, %v want 2s, 2s", d1, d2)
	}
	if d1, d2 := f.SinglePolicy.Delay(1), f.SinglePolicy.Delay(2); d1 != time.Second || d2 != 2*time.Second {
		t.Errorf("single ticker delays = %v, %v want 1s, 2s", d1, d2)
	}
	if f.SinglePolicy.MaxAttempts != 3 {
		t.Errorf("single ticker attempts = %d want 3", f.SinglePolicy.MaxAttempts)
	}
}

func TestScalarRate(t *testing.T) {
	tests := []struct {
		name   string
		source fxfolio.Source
		live   bool
		want   fxfolio.Rate
	}{
		{
			name:   "fixed",
			source: &fakeSource{live: 83.5},
			want:   fxfolio.Rate{Value: decimal.RequireFromString("88.57"), Provenance: fxfolio.Fixed},
		},
		{
			name:   "live",
			source: &fakeSource{live: 83.21519},
			live:   true,
			want:   fxfolio.Rate{Value: decimal.RequireFromString("83.2152"), Provenance: fxfolio.Live},
		},
		{
			name:   "live failure",
			source: &fakeSource{liveErr: errors.New("boom")},
			live:   true,
			want:   fxfolio.Rate{Value: decimal.RequireFromString("88.57"), Provenance: fxfolio.Fixed},
		},
		{
			name:   "no live source",
			source: struct{ fxfolio.Source }{&fakeSource{live: 83.5}},
			live:   true,
			want:   fxfolio.Rate{Value: decimal.RequireFromString("88.57"), Provenance: fxfolio.Fixed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testEnv(t, tt.source)
			got := e.scalarRate(context.Background(), tt.live)
			if !got.Value.Equal(tt.want.Value) || got.Provenance != tt.want.Provenance {
				t.Errorf("scalarRate(%v) = %v want %v", tt.live, got, tt.want)
			}
		})
	}
}

func TestAnalyzeOptions(t *testing.T) {
	tests := []struct {
		args    []string
		want    analyzeOptions
		wantErr bool
	}{
		{
			args: nil,
			want: analyzeOptions{input: "portfolio.csv", outDir: ".", sort: fxfolio.ByValue},
		},
		{
			args: []string{"-sort", "daily", "-live", "-o", "out", "mine.xlsx"},
			want: analyzeOptions{input: "mine.xlsx", outDir: "out", sort: fxfolio.ByDailyChange, live: true},
		},
		{args: []string{"-sort", "color"}, wantErr: true},
		{args: []string{"a.csv", "b.csv"}, wantErr: true},
	}
	for _, tt := range tests {
		var c analyzeCmd
		f := flag.NewFlagSet("analyze", flag.ContinueOnError)
		c.SetFlags(f)
		if err := f.Parse(tt.args); err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", tt.args, err)
		}
		got, err := c.options(f)
		if tt.wantErr {
			if err == nil {
				t.Errorf("options(%q) = %+v want an error", tt.args, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("options(%q) unexpected error: %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("options(%q) = %+v want %+v", tt.args, got, tt.want)
		}
	}
}

func TestWatchStopsOnInputError(t *testing.T) {
	e, _ := testEnv(t, positionsSource())
	opts := analyzeOptions{input: filepath.Join(t.TempDir(), "missing.csv"), outDir: t.TempDir(), sort: fxfolio.ByValue}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.watch(ctx, "@every 1s", "", opts)
	if !fxfolio.IsInputError(err, fxfolio.FileNotFound) {
		t.Errorf("watch() error = %v want file not found", err)
	}
}

func TestWatchCancelled(t *testing.T) {
	e, _ := testEnv(t, positionsSource())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.watch(ctx, DefaultSchedule, "America/New_York", analyzeOptions{}); err != nil {
		t.Errorf("watch() unexpected error: %v", err)
	}
}

func TestNewScheduler(t *testing.T) {
	e, _ := testEnv(t, &fakeSource{})
	tests := []struct {
		spec, tz string
		wantErr  bool
	}{
		{spec: DefaultSchedule, tz: "America/New_York"},
		{spec: "@every 10m"},
		{spec: "every minute", wantErr: true},
		{spec: DefaultSchedule, tz: "Mars/Olympus", wantErr: true},
	}
	for _, tt := range tests {
		_, err := e.newScheduler(tt.spec, tt.tz, func() {})
		if (err != nil) != tt.wantErr {
			t.Errorf("newScheduler(%q, %q) error = %v want error %v", tt.spec, tt.tz, err, tt.wantErr)
		}
	}
}

func TestWriteSamples(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := writeSamples(dir, &out); err != nil {
		t.Fatalf("writeSamples() unexpected error: %v", err)
	}
	if err := writeSamples(dir, &out); err != nil {
		t.Fatalf("writeSamples() unexpected error: %v", err)
	}
	if got := strings.Count(out.String(), "already exists"); got != 2 {
		t.Errorf("writeSamples() twice reported %d existing files want 2:\n%s", got, &out)
	}

	positions, dropped, err := fxfolio.LoadPositions(filepath.Join(dir, "portfolio.csv"), "USD")
	if err != nil || dropped != 0 || len(positions) != 2 {
		t.Errorf("LoadPositions(sample) = %d positions, %d dropped, %v want 2, 0, nil", len(positions), dropped, err)
	}
	transfers, dropped, err := fxfolio.LoadTransfers(filepath.Join(dir, "transfers.csv"), "USD")
	if err != nil || dropped != 0 || len(transfers.Transfers) != 3 {
		t.Errorf("LoadTransfers(sample) unexpected result: dropped %d, error %v", dropped, err)
	}
}

func TestCompletionCoversCommands(t *testing.T) {
	commander := subcommands.NewCommander(flag.NewFlagSet("fxf", flag.ContinueOnError), "fxf")
	Register(commander)
	completion := Completion()

	var names []string
	commander.VisitCommands(func(_ *subcommands.CommandGroup, c subcommands.Command) {
		names = append(names, c.Name())
		sub, ok := completion.Sub[c.Name()]
		if !ok {
			t.Errorf("Completion() has no entry for %q", c.Name())
			return
		}
		f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(f)
		f.VisitAll(func(fl *flag.Flag) {
			if _, ok := sub.Flags[fl.Name]; !ok {
				t.Errorf("Completion() of %q has no flag %q", c.Name(), fl.Name)
			}
		})
	})
	for _, want := range []string{"analyze", "convert", "sample", "topic", "watch"} {
		if !slices.Contains(names, want) {
			t.Errorf("registered commands = %v want %q", names, want)
		}
	}
}
