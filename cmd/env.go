package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/config"
	"github.com/etnz/fxfolio/date"
	"github.com/etnz/fxfolio/eodhd"
	"github.com/etnz/fxfolio/fetch"
	"github.com/etnz/fxfolio/logger"
	"github.com/etnz/fxfolio/remote"
	"github.com/etnz/fxfolio/telemetry"
	"github.com/etnz/fxfolio/yahoo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// env is what every command needs to run: settings, logger, metrics and the market data source.
type env struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	metrics *telemetry.Metrics
	source  fxfolio.Source
	out     io.Writer // console
	raw     bool      // print markdown as is
	now     func() time.Time
}

// loadEnv builds the env from the configuration file and the global flags.
func loadEnv() (*env, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	log, err := logger.New(level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("cannot create logger: %w", err)
	}
	client, err := newHTTPClient(cfg.HTTP, log)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:     cfg,
		log:     log,
		metrics: telemetry.New(),
		out:     os.Stdout,
		raw:     *raw,
		now:     time.Now,
	}
	switch cfg.Provider {
	case config.EODHD:
		e.source = eodhd.New(cfg.EODHD.APIKey, cfg.EODHD.BaseURL, client)
	default:
		e.source = yahoo.New(cfg.Yahoo.BaseURL, client)
	}
	log.Debugw("environment loaded", "provider", cfg.Provider, "pair", cfg.Currency.Pair)
	return e, nil
}

func newHTTPClient(c config.HTTPConfig, log *zap.SugaredLogger) (*http.Client, error) {
	opts := []remote.Option{
		remote.WithTimeout(c.Timeout),
		remote.WithRateLimit(c.RequestsPerSecond, c.Burst),
		remote.WithBreaker(c.Breaker, c.BreakerCooldown),
		remote.WithLogger(log),
	}
	if c.Cache {
		period, err := date.ParsePeriod(c.CachePeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid http.cache_period: %w", err)
		}
		opts = append(opts, remote.WithCache(c.CacheDir, period))
	}
	return remote.NewClient(opts...), nil
}

// rateFetcher returns the historical rate fetcher configured by e.
func (e *env) rateFetcher() *fetch.RateFetcher {
	f := fetch.NewRateFetcher(e.source, e.cfg.Currency.Pair)
	f.WindowBefore = e.cfg.Rates.WindowBefore
	f.WindowAfter = e.cfg.Rates.WindowAfter
	f.Policy = fetch.Exponential(e.cfg.Rates.Attempts, e.cfg.Rates.BaseDelay)
	f.Fallback = decimal.NewFromFloat(e.cfg.Currency.FallbackRate)
	f.KeyDelay = e.cfg.Rates.KeyDelay
	f.Concurrency = e.cfg.Rates.Concurrency
	f.Logger = e.log
	f.Metrics = e.metrics
	return f
}

// quoteFetcher returns the batched quote fetcher configured by e.
func (e *env) quoteFetcher() *fetch.QuoteFetcher {
	f := fetch.NewQuoteFetcher(e.source)
	f.BatchSize = e.cfg.Quotes.BatchSize
	f.BatchDelay = e.cfg.Quotes.BatchDelay
	f.BatchPolicy = fetch.Constant(e.cfg.Quotes.Attempts, e.cfg.Quotes.RetryDelay)
	f.SinglePolicy = fetch.Exponential(e.cfg.Quotes.Attempts, e.cfg.Quotes.SingleDelay)
	f.LookbackDays = e.cfg.Quotes.LookbackDays
	f.Logger = e.log
	f.Metrics = e.metrics
	return f
}

// printMarkdown renders md for the terminal, or prints it unchanged in raw mode.
func (e *env) printMarkdown(md string) {
	if e.raw {
		fmt.Fprint(e.out, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Fprint(e.out, out)
			return
		}
	}
	e.log.Debugw("cannot render markdown", "error", err)
	fmt.Fprint(e.out, md)
}

// done records the duration of command and writes the metrics textfile if one is configured.
func (e *env) done(command string, start time.Time) {
	e.metrics.ObserveRun(command, e.now().Sub(start))
	path := e.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := e.metrics.WriteTextfile(path); err != nil {
		e.log.Warnw("cannot write metrics", "path", path, "error", err)
		return
	}
	e.log.Debugw("metrics written", "path", path)
}
