package eodhd

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/etnz/fxfolio/date"
	"github.com/etnz/fxfolio/remote"
	"github.com/shopspring/decimal"
)

// This file contains functions to access the EODHD API.

// bar is one day of the end of day API.
type bar struct {
	Date  date.Date           `json:"date"`
	Open  decimal.NullDecimal `json:"open"`
	Close decimal.NullDecimal `json:"close"`
	// AdjustedClose decimal.Decimal        `json:"adjusted_close"`
}

// fetchPrices returns the daily bars of an EODHD ticker between from and to, both included.
// The EODHD ticker format is typically "SYMBOL.EXCHANGECODE".
func (c *Client) fetchPrices(ctx context.Context, ticker string, from, to date.Date) ([]bar, error) {
	// https://eodhd.com/api/eod/MCD.US?api_token=demo&fmt=json
	// [
	//	{
	//		"date": "2024-02-13",
	//		"open": 675.066,
	//		"high": 684.219,
	//		"low": 648.659,
	//		"close": 668.445,
	//		"adjusted_close": 67.705,
	//		"volume": 0
	//	},
	q := url.Values{}
	q.Set("fmt", "json")
	q.Set("api_token", c.apiKey)
	q.Set("from", from.String())
	q.Set("to", to.String())
	addr := fmt.Sprintf("%s/api/eod/%s?%s", c.baseURL, url.PathEscape(ticker), q.Encode())

	if !to.Before(c.today()) {
		// today's bar changes until the close
		ctx = remote.NoCache(ctx)
	}

	// that's the payload
	content := make([]bar, 0)
	if err := remote.GetJSON(ctx, c.http, addr, &content); err != nil {
		return nil, fmt.Errorf("eodhd eod %s: %w", ticker, err)
	}
	return content, nil
}

// value returns d as a float, NaN when the API had no value.
func value(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return math.NaN()
	}
	return d.Decimal.InexactFloat64()
}
