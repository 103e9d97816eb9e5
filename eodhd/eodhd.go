// Package eodhd reads daily closes from the EODHD end of day API.
//
// Symbols follow the Yahoo conventions used in input files: plain tickers are US listed,
// and currency pairs are written like USDINR=X.
package eodhd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/date"
	"github.com/etnz/fxfolio/remote"
)

// nice to redirect to https://eodhd.com/financial-summary/MCD.US

const DefaultBaseURL = "https://eodhd.com"

// Client implements fxfolio.Source on top of EODHD.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	today   func() date.Date
}

// New returns a client using apiKey, baseURL is DefaultBaseURL if empty.
func New(apiKey, baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = remote.NewClient()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    client,
		today:   date.Today,
	}
}

// Ticker returns the EODHD ticker of symbol, and whether it is a currency pair.
func Ticker(symbol string) (ticker string, forex bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if pair, ok := strings.CutSuffix(symbol, "=X"); ok && len(pair) == 6 {
		// The Ticker for forex is in the format "fromCurrency+toCurrency.FOREX".
		return pair + ".FOREX", true
	}
	if strings.HasSuffix(symbol, ".FOREX") {
		return symbol, true
	}
	if strings.Contains(symbol, ".") {
		return symbol, false
	}
	return symbol + ".US", false
}

// HistoricalSeries returns the daily closes of symbol between from and to, both included.
func (c *Client) HistoricalSeries(ctx context.Context, symbol string, from, to date.Date) (fxfolio.Series, error) {
	ticker, forex := Ticker(symbol)
	s := fxfolio.Series{Symbol: symbol}

	if forex {
		// eodhd forex close is most of the time equal to the open.
		// Instead the open of the next day is the closer to the truth, so be it.
		bars, err := c.fetchPrices(ctx, ticker, from.Add(1), to.Add(1))
		if err != nil {
			return s, err
		}
		for _, b := range bars {
			s.Closes.Append(b.Date.Add(-1), value(b.Open))
		}
		return s, nil
	}

	bars, err := c.fetchPrices(ctx, ticker, from, to)
	if err != nil {
		return s, err
	}
	for _, b := range bars {
		s.Closes.Append(b.Date, value(b.Close))
	}
	return s, nil
}

// RecentSeries returns the daily closes of symbols over about the last lookbackDays trading days.
// EODHD has no multi symbol endpoint, symbols are queried one by one. Unknown symbols are
// missing from the result.
func (c *Client) RecentSeries(ctx context.Context, symbols []string, lookbackDays int) ([]fxfolio.Series, error) {
	to := c.today()
	// trading days to calendar days, with room for a bank holiday
	from := to.Add(-(lookbackDays*7/5 + 2))

	var res []fxfolio.Series
	for _, symbol := range symbols {
		s, err := c.HistoricalSeries(ctx, symbol, from, to)
		var se *remote.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("recent closes of %s: %w", symbol, err)
		}
		res = append(res, s)
	}
	return res, nil
}
