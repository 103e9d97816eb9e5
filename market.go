package fxfolio

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/etnz/fxfolio/date"
	"github.com/shopspring/decimal"
)

// Series is the daily close history of one symbol, as returned by a Source.
// Missing observations are NaN.
type Series struct {
	Symbol string
	Closes date.History[float64]
}

// Source is the market data provider boundary.
//
// Single and multi-symbol answers share the same shape: a slice of Series.
type Source interface {
	// HistoricalSeries returns the daily closes of symbol between from and to, both included.
	HistoricalSeries(ctx context.Context, symbol string, from, to date.Date) (Series, error)
	// RecentSeries returns the daily closes over the last lookbackDays for each symbol, in one request when possible.
	// Symbols unknown to the provider are simply absent from the result.
	RecentSeries(ctx context.Context, symbols []string, lookbackDays int) ([]Series, error)
}

// LiveRateSource can quote the latest value of a currency pair.
type LiveRateSource interface {
	LatestRate(ctx context.Context, symbol string) (float64, error)
}

// Provenance tells where a rate comes from.
type Provenance int

const (
	Exact             Provenance = iota // observed on the requested day
	LatestBefore                        // last observation before the requested day
	EarliestAvailable                   // first observation after the requested day
	Fallback                            // hardcoded default, the provider had nothing
	Fixed                               // configured scalar
	Live                                // live quote
)

func (p Provenance) String() string {
	switch p {
	case Exact:
		return "exact"
	case LatestBefore:
		return "latest-before"
	case EarliestAvailable:
		return "earliest-available"
	case Fallback:
		return "fallback"
	case Fixed:
		return "fixed"
	case Live:
		return "live"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

func (p Provenance) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Rate is an exchange rate and how it was obtained.
type Rate struct {
	Value      decimal.Decimal
	Provenance Provenance
	On         date.Date // day of the observation, zero for Fallback and Fixed
}

func (r Rate) String() string { return fmt.Sprintf("%s (%s)", r.Value.StringFixed(4), r.Provenance) }

// RateCache maps each requested day to its Rate. It is built once and only read afterwards.
type RateCache map[date.Date]Rate

// Lookup returns the rate for day.
func (c RateCache) Lookup(day date.Date) (Rate, bool) {
	r, ok := c[day]
	return r, ok
}

// Days returns the cached days in chronological order.
func (c RateCache) Days() []date.Date {
	return slices.SortedFunc(maps.Keys(c), func(a, b date.Date) int { return a.Sub(b) })
}

// MarketQuote is the last two valid closes of a ticker, in the source currency.
type MarketQuote struct {
	Ticker     string
	Current    decimal.Decimal
	Previous   decimal.Decimal
	CurrentOn  date.Date
	PreviousOn date.Date
}

// NewMarketQuote returns a quote, previousOn must be strictly before currentOn.
func NewMarketQuote(ticker string, previousOn date.Date, previous decimal.Decimal, currentOn date.Date, current decimal.Decimal) (MarketQuote, error) {
	if !previousOn.Before(currentOn) {
		return MarketQuote{}, fmt.Errorf("quote %s: previous close on %s is not before current close on %s", ticker, previousOn, currentOn)
	}
	return MarketQuote{
		Ticker:     ticker,
		Current:    current,
		Previous:   previous,
		CurrentOn:  currentOn,
		PreviousOn: previousOn,
	}, nil
}

// QuoteFromSeries builds a quote from the last two valid closes of s.
// It returns ErrInsufficientData if s has fewer than two valid closes.
func QuoteFromSeries(ticker string, s Series) (MarketQuote, error) {
	valid := date.Valid(s.Closes)
	if valid.Len() < 2 {
		return MarketQuote{}, fmt.Errorf("%s: %w: %d valid closes", ticker, ErrInsufficientData, valid.Len())
	}
	days, values := valid.Tail(2)
	return NewMarketQuote(ticker, days[0], decimal.NewFromFloat(values[0]), days[1], decimal.NewFromFloat(values[1]))
}

// MarketData maps tickers to their quote. It is built once and only read afterwards.
type MarketData map[string]MarketQuote

// Tickers returns the quoted tickers, sorted.
func (m MarketData) Tickers() []string { return slices.Sorted(maps.Keys(m)) }
