package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/date"
	"github.com/etnz/fxfolio/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Rate defaults.
const (
	DefaultPair         = "USDINR=X"
	DefaultFallbackRate = 83.0
	DefaultFixedRate    = 88.57
	DefaultWindowBefore = 5
	DefaultWindowAfter  = 1
	DefaultKeyDelay     = 500 * time.Millisecond
)

// ratePlaces is the number of decimal places kept on fetched rates.
const ratePlaces = 4

// DefaultRatePolicy tries 3 times, waiting 1s then 2s.
var DefaultRatePolicy = Exponential(3, time.Second)

// RateFetcher fetches the daily exchange rate of a currency pair.
type RateFetcher struct {
	Source       fxfolio.Source
	Pair         string // provider symbol of the pair, e.g. USDINR=X
	WindowBefore int    // days queried before the requested day
	WindowAfter  int    // days queried after the requested day
	Policy       Policy
	Fallback     decimal.Decimal // used when every attempt failed
	KeyDelay     time.Duration   // pause between two dates
	Concurrency  int             // dates fetched in parallel, 1 if unset
	Logger       *zap.SugaredLogger
	Metrics      *telemetry.Metrics
}

// NewRateFetcher returns a fetcher with the default window, policy and fallback.
func NewRateFetcher(src fxfolio.Source, pair string) *RateFetcher {
	return &RateFetcher{
		Source:       src,
		Pair:         pair,
		WindowBefore: DefaultWindowBefore,
		WindowAfter:  DefaultWindowAfter,
		Policy:       DefaultRatePolicy,
		Fallback:     decimal.NewFromFloat(DefaultFallbackRate),
		KeyDelay:     DefaultKeyDelay,
		Concurrency:  1,
	}
}

func (f *RateFetcher) log() *zap.SugaredLogger {
	if f.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return f.Logger
}

// SelectRate picks the rate for day 'on' in closes.
//
// NaN observations are ignored. The exact day wins, then the latest day before 'on', then
// the earliest day of the series. It returns fxfolio.ErrNoData if closes has no valid observation.
func SelectRate(closes date.History[float64], on date.Date) (fxfolio.Rate, error) {
	valid := date.Valid(closes)
	if valid.Len() == 0 {
		return fxfolio.Rate{}, fxfolio.ErrNoData
	}
	rate := func(v float64, day date.Date, p fxfolio.Provenance) fxfolio.Rate {
		return fxfolio.Rate{Value: decimal.NewFromFloat(v).Round(ratePlaces), Provenance: p, On: day}
	}
	if v, ok := valid.Get(on); ok {
		return rate(v, on, fxfolio.Exact), nil
	}
	if day, v, ok := valid.ValueAsOf(on); ok {
		return rate(v, day, fxfolio.LatestBefore), nil
	}
	day, v := valid.Earliest()
	return rate(v, day, fxfolio.EarliestAvailable), nil
}

// Fetch returns the rate for day 'on', retrying according to the policy.
// It returns a *FetchFailure once every attempt failed.
func (f *RateFetcher) Fetch(ctx context.Context, on date.Date) (fxfolio.Rate, error) {
	window := date.Around(on, f.WindowBefore, f.WindowAfter)
	return Do(ctx, on.String(), f.Policy, func(ctx context.Context, attempt int) (fxfolio.Rate, error) {
		f.Metrics.Attempt(telemetry.KindRate)
		s, err := f.Source.HistoricalSeries(ctx, f.Pair, window.From, window.To)
		if err == nil {
			var r fxfolio.Rate
			r, err = SelectRate(s.Closes, on)
			if err == nil {
				return r, nil
			}
		}
		f.Metrics.Failure(telemetry.KindRate)
		f.log().Warnw("rate fetch failed", "date", on, "window", window, "attempt", attempt, "error", err)
		return fxfolio.Rate{}, err
	})
}

// Rate returns the rate for day 'on', or the fallback rate if Fetch failed.
// The only error is the context one.
func (f *RateFetcher) Rate(ctx context.Context, on date.Date) (fxfolio.Rate, error) {
	r, err := f.Fetch(ctx, on)
	if err == nil {
		f.log().Debugw("rate fetched", "date", on, "rate", r)
		return r, nil
	}
	if ctx.Err() != nil {
		return fxfolio.Rate{}, ctx.Err()
	}
	f.Metrics.Fallback()
	f.log().Warnw("using fallback rate", "date", on, "rate", f.Fallback, "error", err)
	return fxfolio.Rate{Value: f.Fallback, Provenance: fxfolio.Fallback}, nil
}

// FetchAll returns the rate of every unique day in days.
//
// Each day is fetched once. A worker waits KeyDelay after each fetch before taking the next day.
func (f *RateFetcher) FetchAll(ctx context.Context, days []date.Date) (fxfolio.RateCache, error) {
	unique := make([]date.Date, 0, len(days))
	seen := make(map[date.Date]bool, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			unique = append(unique, d)
		}
	}

	cache := make(fxfolio.RateCache, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.Concurrency, 1))
	for i, d := range unique {
		if gctx.Err() != nil {
			break
		}
		last := i == len(unique)-1
		g.Go(func() error {
			r, err := f.Rate(gctx, d)
			if err != nil {
				return err
			}
			mu.Lock()
			cache[d] = r
			mu.Unlock()
			if last {
				return nil
			}
			// the slot is released after the pause
			return Pause(gctx, f.KeyDelay)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.log().Infow("rates fetched", "pair", f.Pair, "dates", len(cache))
	return cache, nil
}
