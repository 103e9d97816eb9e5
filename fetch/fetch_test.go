package fetch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastPolicy retries without waiting.
var fastPolicy = Constant(3, 0)

var errNetwork = errors.New("connection reset by peer")

// fakeSource is a scripted fxfolio.Source recording its calls.
type fakeSource struct {
	mu         sync.Mutex
	historical func(symbol string, from, to date.Date) (fxfolio.Series, error)
	recent     func(symbols []string) ([]fxfolio.Series, error)

	windows []date.Range
	batches [][]string
}

func (f *fakeSource) HistoricalSeries(_ context.Context, symbol string, from, to date.Date) (fxfolio.Series, error) {
	f.mu.Lock()
	f.windows = append(f.windows, date.Range{From: from, To: to})
	f.mu.Unlock()
	return f.historical(symbol, from, to)
}

func (f *fakeSource) RecentSeries(_ context.Context, symbols []string, _ int) ([]fxfolio.Series, error) {
	f.mu.Lock()
	f.batches = append(f.batches, symbols)
	f.mu.Unlock()
	return f.recent(symbols)
}

// series builds a series from consecutive days starting on 'from'.
func series(symbol string, from date.Date, closes ...float64) fxfolio.Series {
	s := fxfolio.Series{Symbol: symbol}
	for i, c := range closes {
		s.Closes.Append(from.Add(i), c)
	}
	return s
}

func TestPolicyDelay(t *testing.T) {
	exp := Exponential(3, time.Second)
	assert.Equal(t, time.Duration(0), exp.Delay(0))
	assert.Equal(t, time.Second, exp.Delay(1))
	assert.Equal(t, 2*time.Second, exp.Delay(2))
	assert.Equal(t, 4*time.Second, exp.Delay(3))

	constant := Constant(3, 2*time.Second)
	assert.Equal(t, 2*time.Second, constant.Delay(1))
	assert.Equal(t, 2*time.Second, constant.Delay(3))

	capped := Policy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 10, MaxDelay: 5 * time.Second}
	assert.Equal(t, 5*time.Second, capped.Delay(3))
}

func TestQuoteFetcherPolicies(t *testing.T) {
	f := NewQuoteFetcher(nil)
	assert.Equal(t, 2*time.Second, f.BatchPolicy.Delay(1))
	assert.Equal(t, 2*time.Second, f.BatchPolicy.Delay(2))

	// tickers retried alone back off like rates
	assert.Equal(t, 3, f.SinglePolicy.MaxAttempts)
	assert.Equal(t, time.Second, f.SinglePolicy.Delay(1))
	assert.Equal(t, 2*time.Second, f.SinglePolicy.Delay(2))
}

func TestDo(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		v, err := Do(context.Background(), "k", fastPolicy, func(context.Context, int) (int, error) {
			calls++
			if calls < 3 {
				return 0, errNetwork
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), "k", fastPolicy, func(context.Context, int) (int, error) {
			calls++
			return 0, errNetwork
		})
		var ff *FetchFailure
		require.ErrorAs(t, err, &ff)
		assert.Equal(t, "k", ff.Key)
		assert.Equal(t, 3, ff.Attempts)
		assert.ErrorIs(t, err, errNetwork)
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := Do(ctx, "k", fastPolicy, func(context.Context, int) (int, error) {
			calls++
			return 0, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})

	t.Run("waits between attempts", func(t *testing.T) {
		start := time.Now()
		_, err := Do(context.Background(), "k", Constant(2, 20*time.Millisecond), func(context.Context, int) (int, error) {
			return 0, errNetwork
		})
		require.Error(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}

func TestSelectRate(t *testing.T) {
	friday := date.New(2023, 12, 29)
	monday := date.New(2024, 1, 1)

	var weekend date.History[float64]
	weekend.Append(date.New(2023, 12, 28), 83.20)
	weekend.Append(friday, 83.12)
	weekend.Append(date.New(2024, 1, 2), 83.30)

	var later date.History[float64]
	later.Append(date.New(2024, 1, 2), 83.30)
	later.Append(date.New(2024, 1, 3), 83.40)

	var holes date.History[float64]
	holes.Append(friday, 83.12)
	holes.Append(monday, math.NaN())

	var precise date.History[float64]
	precise.Append(monday, 83.123456)

	testCases := []struct {
		name    string
		closes  date.History[float64]
		want    float64
		wantOn  date.Date
		wantPrv fxfolio.Provenance
	}{
		{"weekend uses the previous friday", weekend, 83.12, friday, fxfolio.LatestBefore},
		{"only later observations", later, 83.30, date.New(2024, 1, 2), fxfolio.EarliestAvailable},
		{"NaN on the day is skipped", holes, 83.12, friday, fxfolio.LatestBefore},
		{"rounded to 4 places", precise, 83.1235, monday, fxfolio.Exact},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := SelectRate(tc.closes, monday)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPrv, r.Provenance)
			assert.Equal(t, tc.wantOn, r.On)
			assert.True(t, r.Value.Equal(decimal.NewFromFloat(tc.want)), "SelectRate() = %v want %v", r.Value, tc.want)
		})
	}

	r, err := SelectRate(weekend, friday)
	require.NoError(t, err)
	assert.Equal(t, fxfolio.Exact, r.Provenance)

	_, err = SelectRate(date.History[float64]{}, monday)
	assert.ErrorIs(t, err, fxfolio.ErrNoData)
}

func TestRateFetcherWeekend(t *testing.T) {
	src := &fakeSource{
		historical: func(symbol string, from, to date.Date) (fxfolio.Series, error) {
			s := fxfolio.Series{Symbol: symbol}
			s.Closes.Append(date.New(2023, 12, 28), 83.20)
			s.Closes.Append(date.New(2023, 12, 29), 83.12)
			s.Closes.Append(date.New(2024, 1, 2), 83.30)
			return s, nil
		},
	}
	f := NewRateFetcher(src, DefaultPair)
	f.Policy = fastPolicy
	f.KeyDelay = 0

	on := date.New(2024, 1, 1)
	cache, err := f.FetchAll(context.Background(), []date.Date{on, on})
	require.NoError(t, err)
	require.Len(t, cache, 1)

	r, ok := cache.Lookup(on)
	require.True(t, ok)
	assert.Equal(t, fxfolio.LatestBefore, r.Provenance)
	assert.True(t, r.Value.Equal(decimal.NewFromFloat(83.12)))

	require.Len(t, src.windows, 1)
	assert.Equal(t, date.Range{From: date.New(2023, 12, 27), To: date.New(2024, 1, 2)}, src.windows[0])

	converted := fxfolio.M(100.0, "USD").Convert(r.Value, "INR").Round()
	assert.True(t, converted.Equal(fxfolio.M(8312.0, "INR")), "converted = %v", converted)
}

func TestRateFetcherFallback(t *testing.T) {
	src := &fakeSource{
		historical: func(string, date.Date, date.Date) (fxfolio.Series, error) {
			return fxfolio.Series{}, errNetwork
		},
	}
	f := NewRateFetcher(src, DefaultPair)
	f.Policy = fastPolicy

	on := date.New(2024, 3, 15)
	_, err := f.Fetch(context.Background(), on)
	var ff *FetchFailure
	require.ErrorAs(t, err, &ff)
	assert.Equal(t, 3, ff.Attempts)

	src.windows = nil
	cache, err := f.FetchAll(context.Background(), []date.Date{on})
	require.NoError(t, err)
	assert.Len(t, src.windows, 3)
	r := cache[on]
	assert.Equal(t, fxfolio.Fallback, r.Provenance)
	assert.True(t, r.Value.Equal(decimal.NewFromFloat(83.0)))
}

func TestRateFetcherEmptyWindowIsRetried(t *testing.T) {
	calls := 0
	src := &fakeSource{
		historical: func(symbol string, from, to date.Date) (fxfolio.Series, error) {
			calls++
			if calls == 1 {
				return fxfolio.Series{Symbol: symbol}, nil
			}
			return series(symbol, from, 82.5), nil
		},
	}
	f := NewRateFetcher(src, DefaultPair)
	f.Policy = fastPolicy

	r, err := f.Rate(context.Background(), date.New(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, fxfolio.LatestBefore, r.Provenance)
}

func TestRateFetcherConcurrent(t *testing.T) {
	src := &fakeSource{
		historical: func(symbol string, from, to date.Date) (fxfolio.Series, error) {
			// the day requested is 5 days after 'from'
			return series(symbol, from.Add(5), 80+float64(from.Day())/100), nil
		},
	}
	f := NewRateFetcher(src, DefaultPair)
	f.Policy = fastPolicy
	f.KeyDelay = 0
	f.Concurrency = 4

	var days []date.Date
	for i := 0; i < 10; i++ {
		d := date.New(2024, 5, 1+i)
		days = append(days, d, d)
	}
	cache, err := f.FetchAll(context.Background(), days)
	require.NoError(t, err)
	assert.Len(t, cache, 10)
	assert.Len(t, src.windows, 10, "each day must be fetched exactly once")
	for _, d := range cache.Days() {
		assert.Equal(t, fxfolio.Exact, cache[d].Provenance)
	}
}

func TestRateFetcherPacing(t *testing.T) {
	const fetchTime, keyDelay = 40 * time.Millisecond, 30 * time.Millisecond
	var mu sync.Mutex
	var starts, ends []time.Time
	src := &fakeSource{
		historical: func(symbol string, from, to date.Date) (fxfolio.Series, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			time.Sleep(fetchTime)
			mu.Lock()
			ends = append(ends, time.Now())
			mu.Unlock()
			return series(symbol, from, 83), nil
		},
	}
	f := NewRateFetcher(src, DefaultPair)
	f.Policy = fastPolicy
	f.KeyDelay = keyDelay

	days := []date.Date{date.New(2024, 1, 1), date.New(2024, 1, 2), date.New(2024, 1, 3)}
	_, err := f.FetchAll(context.Background(), days)
	require.NoError(t, err)
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(ends[i-1])
		assert.GreaterOrEqual(t, gap, keyDelay, "gap before date #%d", i+1)
	}
}

func TestRateFetcherCancelled(t *testing.T) {
	src := &fakeSource{
		historical: func(string, date.Date, date.Date) (fxfolio.Series, error) {
			return fxfolio.Series{}, errNetwork
		},
	}
	f := NewRateFetcher(src, DefaultPair)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.FetchAll(ctx, []date.Date{date.New(2024, 1, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartition(t *testing.T) {
	var keys []string
	for i := 0; i < 23; i++ {
		keys = append(keys, string(rune('A'+i)))
	}
	batches := Partition(keys, 10)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[1], 10)
	assert.Equal(t, []string{"U", "V", "W"}, batches[2])

	assert.Empty(t, Partition(nil, 10))
}

func newQuoteFetcher(src fxfolio.Source) *QuoteFetcher {
	f := NewQuoteFetcher(src)
	f.BatchDelay = 0
	f.BatchPolicy = fastPolicy
	f.SinglePolicy = fastPolicy
	return f
}

var monday = date.New(2024, 1, 1)

func TestQuoteFetcherPartialBatch(t *testing.T) {
	src := &fakeSource{
		recent: func(symbols []string) ([]fxfolio.Series, error) {
			if len(symbols) > 1 {
				return []fxfolio.Series{
					series("AAPL", monday, 180, 182),
					series("NEWCO", monday, math.NaN(), 12),
				}, nil
			}
			// individually, NEWCO has enough data
			return []fxfolio.Series{series("NEWCO", monday, 11, 12)}, nil
		},
	}
	res, err := newQuoteFetcher(src).FetchAll(context.Background(), []string{"AAPL", "NEWCO"})
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	require.Contains(t, res.Quotes, "AAPL")
	require.Contains(t, res.Quotes, "NEWCO")
	assert.True(t, res.Quotes["AAPL"].Current.Equal(decimal.NewFromFloat(182)))
	assert.True(t, res.Quotes["NEWCO"].Previous.Equal(decimal.NewFromFloat(11)))
	assert.Equal(t, [][]string{{"AAPL", "NEWCO"}, {"NEWCO"}}, src.batches)
}

func TestQuoteFetcherInsufficientTickerDropped(t *testing.T) {
	src := &fakeSource{
		recent: func(symbols []string) ([]fxfolio.Series, error) {
			var res []fxfolio.Series
			for _, s := range symbols {
				if s == "NEWCO" {
					res = append(res, series(s, monday, 12))
					continue
				}
				res = append(res, series(s, monday, 180, 182))
			}
			return res, nil
		},
	}
	res, err := newQuoteFetcher(src).FetchAll(context.Background(), []string{"AAPL", "NEWCO"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NEWCO"}, res.Failed)
	assert.NotContains(t, res.Quotes, "NEWCO")
	assert.Contains(t, res.Quotes, "AAPL")
	// one batch request then three individual attempts
	assert.Len(t, src.batches, 4)
}

func TestQuoteFetcherBatchFailureEscalates(t *testing.T) {
	src := &fakeSource{
		recent: func(symbols []string) ([]fxfolio.Series, error) {
			if len(symbols) > 1 {
				return nil, errNetwork
			}
			return []fxfolio.Series{series(symbols[0], monday, 10, 11)}, nil
		},
	}
	res, err := newQuoteFetcher(src).FetchAll(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Quotes, 2)
	// three batch attempts, then one request per ticker
	assert.Len(t, src.batches, 5)
}

func TestQuoteFetcherEmptyBatchIsRetried(t *testing.T) {
	calls := 0
	src := &fakeSource{
		recent: func(symbols []string) ([]fxfolio.Series, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			var res []fxfolio.Series
			for _, s := range symbols {
				res = append(res, series(s, monday, 10, 11))
			}
			return res, nil
		},
	}
	res, err := newQuoteFetcher(src).FetchAll(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Len(t, res.Quotes, 2)
	assert.Equal(t, 2, calls)
}

func TestQuoteFetcherBatches(t *testing.T) {
	src := &fakeSource{
		recent: func(symbols []string) ([]fxfolio.Series, error) {
			var res []fxfolio.Series
			for _, s := range symbols {
				res = append(res, series(s, monday, 10, math.NaN(), 11, math.NaN()))
			}
			return res, nil
		},
	}
	var tickers []string
	for i := 0; i < 25; i++ {
		tickers = append(tickers, string(rune('A'+i)))
	}
	tickers = append(tickers, "A", "B")

	res, err := newQuoteFetcher(src).FetchAll(context.Background(), tickers)
	require.NoError(t, err)
	assert.Len(t, res.Quotes, 25)
	require.Len(t, src.batches, 3)
	assert.Len(t, src.batches[2], 5)

	q := res.Quotes["A"]
	assert.True(t, q.Current.Equal(decimal.NewFromFloat(11)))
	assert.True(t, q.Previous.Equal(decimal.NewFromFloat(10)))
	assert.True(t, q.PreviousOn.Before(q.CurrentOn))
}
