package fetch

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/telemetry"
	"go.uber.org/zap"
)

// Quote defaults.
const (
	DefaultBatchSize    = 10
	DefaultBatchDelay   = time.Second
	DefaultLookbackDays = 5
)

// DefaultBatchPolicy tries 3 times, waiting 2s between attempts.
var DefaultBatchPolicy = Constant(3, 2*time.Second)

// DefaultSinglePolicy is the single key policy of rates, for tickers retried alone.
var DefaultSinglePolicy = DefaultRatePolicy

// QuoteFetcher fetches the last two closes of tickers, in batches.
type QuoteFetcher struct {
	Source       fxfolio.Source
	BatchSize    int
	BatchDelay   time.Duration // pause between two batches
	BatchPolicy  Policy        // for combined requests
	SinglePolicy Policy        // for tickers retried on their own
	LookbackDays int
	Logger       *zap.SugaredLogger
	Metrics      *telemetry.Metrics
}

// NewQuoteFetcher returns a fetcher with the default batching and policies.
func NewQuoteFetcher(src fxfolio.Source) *QuoteFetcher {
	return &QuoteFetcher{
		Source:       src,
		BatchSize:    DefaultBatchSize,
		BatchDelay:   DefaultBatchDelay,
		BatchPolicy:  DefaultBatchPolicy,
		SinglePolicy: DefaultSinglePolicy,
		LookbackDays: DefaultLookbackDays,
	}
}

// QuoteResult is the outcome of QuoteFetcher.FetchAll.
type QuoteResult struct {
	Quotes fxfolio.MarketData
	Failed []string // tickers without a usable quote, sorted
}

func (f *QuoteFetcher) log() *zap.SugaredLogger {
	if f.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return f.Logger
}

// Partition splits keys into consecutive batches of at most size keys.
func Partition(keys []string, size int) [][]string {
	size = max(size, 1)
	var batches [][]string
	for chunk := range slices.Chunk(keys, size) {
		batches = append(batches, chunk)
	}
	return batches
}

// find returns the series of ticker in series.
func find(series []fxfolio.Series, ticker string) (fxfolio.Series, bool) {
	for _, s := range series {
		if strings.EqualFold(s.Symbol, ticker) {
			return s, true
		}
	}
	return fxfolio.Series{}, false
}

// FetchAll returns a quote for every ticker that has at least two valid closes.
//
// Tickers are queried in batches, tickers that failed in their batch are retried one by one.
// The only error is the context one.
func (f *QuoteFetcher) FetchAll(ctx context.Context, tickers []string) (QuoteResult, error) {
	var unique []string
	for _, t := range tickers {
		if !slices.Contains(unique, t) {
			unique = append(unique, t)
		}
	}

	res := QuoteResult{Quotes: make(fxfolio.MarketData, len(unique))}
	var failed []string

	batches := Partition(unique, f.BatchSize)
	for i, batch := range batches {
		if i > 0 {
			if err := Pause(ctx, f.BatchDelay); err != nil {
				return QuoteResult{}, err
			}
		}
		series, err := f.fetchBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return QuoteResult{}, ctx.Err()
			}
			f.log().Warnw("batch failed", "batch", i+1, "tickers", batch, "error", err)
			failed = append(failed, batch...)
			continue
		}
		for _, ticker := range batch {
			s, ok := find(series, ticker)
			if !ok {
				f.log().Warnw("ticker missing from batch response", "ticker", ticker)
				failed = append(failed, ticker)
				continue
			}
			q, err := fxfolio.QuoteFromSeries(ticker, s)
			if err != nil {
				f.log().Warnw("invalid ticker data", "ticker", ticker, "error", err)
				failed = append(failed, ticker)
				continue
			}
			res.Quotes[ticker] = q
		}
		f.log().Debugw("batch fetched", "batch", i+1, "of", len(batches), "tickers", len(batch))
	}

	for _, ticker := range failed {
		q, err := f.Fetch(ctx, ticker)
		if err != nil {
			if ctx.Err() != nil {
				return QuoteResult{}, ctx.Err()
			}
			f.log().Errorw("ticker dropped", "ticker", ticker, "error", err)
			res.Failed = append(res.Failed, ticker)
			continue
		}
		f.log().Infow("ticker recovered individually", "ticker", ticker)
		res.Quotes[ticker] = q
	}
	slices.Sort(res.Failed)
	f.Metrics.Dropped(len(res.Failed))
	return res, nil
}

// fetchBatch issues one combined request for batch, with the batch policy.
func (f *QuoteFetcher) fetchBatch(ctx context.Context, batch []string) ([]fxfolio.Series, error) {
	return Do(ctx, strings.Join(batch, ","), f.BatchPolicy, func(ctx context.Context, attempt int) ([]fxfolio.Series, error) {
		f.Metrics.Attempt(telemetry.KindBatch)
		series, err := f.Source.RecentSeries(ctx, batch, f.LookbackDays)
		if err == nil && len(series) == 0 {
			err = fxfolio.ErrNoData
		}
		if err != nil {
			f.Metrics.Failure(telemetry.KindBatch)
			f.log().Debugw("batch attempt failed", "tickers", batch, "attempt", attempt, "error", err)
			return nil, err
		}
		return series, nil
	})
}

// Fetch returns the quote of a single ticker, with the single-key policy.
// Insufficient data is retried like any other error.
func (f *QuoteFetcher) Fetch(ctx context.Context, ticker string) (fxfolio.MarketQuote, error) {
	return Do(ctx, ticker, f.SinglePolicy, func(ctx context.Context, attempt int) (fxfolio.MarketQuote, error) {
		f.Metrics.Attempt(telemetry.KindTicker)
		series, err := f.Source.RecentSeries(ctx, []string{ticker}, f.LookbackDays)
		if err == nil {
			s, ok := find(series, ticker)
			if !ok {
				err = fxfolio.ErrNoData
			} else {
				var q fxfolio.MarketQuote
				if q, err = fxfolio.QuoteFromSeries(ticker, s); err == nil {
					return q, nil
				}
			}
		}
		f.Metrics.Failure(telemetry.KindTicker)
		f.log().Debugw("ticker attempt failed", "ticker", ticker, "attempt", attempt, "error", err)
		return fxfolio.MarketQuote{}, err
	})
}
