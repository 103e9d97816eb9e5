// Package yahoo reads daily closes from the Yahoo Finance chart and spark APIs.
package yahoo

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/fxfolio"
	"github.com/etnz/fxfolio/date"
	"github.com/etnz/fxfolio/remote"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client implements fxfolio.Source and fxfolio.LiveRateSource on top of Yahoo Finance.
type Client struct {
	baseURL string
	http    *http.Client
	today   func() date.Date
}

// New returns a client for baseURL, DefaultBaseURL if empty.
func New(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = remote.NewClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: client, today: date.Today}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type sparkResponse struct {
	Spark struct {
		Result []struct {
			Symbol   string        `json:"symbol"`
			Response []chartResult `json:"response"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"spark"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		GMTOffset          int64   `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) Error() string { return fmt.Sprintf("yahoo: %s: %s", e.Code, e.Description) }

// series converts a chart result into daily closes, missing closes become NaN.
// Timestamps are read in the exchange time zone.
func (r chartResult) series(symbol string) fxfolio.Series {
	s := fxfolio.Series{Symbol: symbol}
	if r.Meta.Symbol != "" {
		s.Symbol = r.Meta.Symbol
	}
	var closes []*float64
	if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}
	for i, ts := range r.Timestamp {
		v := math.NaN()
		if i < len(closes) && closes[i] != nil {
			v = *closes[i]
		}
		day := date.FromTime(time.Unix(ts+r.Meta.GMTOffset, 0).UTC())
		s.Closes.Append(day, v)
	}
	return s
}

// HistoricalSeries returns the daily closes of symbol between from and to, both included.
func (c *Client) HistoricalSeries(ctx context.Context, symbol string, from, to date.Date) (fxfolio.Series, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprint(from.Unix()))
	q.Set("period2", fmt.Sprint(to.Add(1).Unix()))
	q.Set("interval", "1d")
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())
	if !to.Before(c.today()) {
		// the window is still open
		ctx = remote.NoCache(ctx)
	}

	var resp chartResponse
	if err := remote.GetJSON(ctx, c.http, addr, &resp); err != nil {
		return fxfolio.Series{}, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return fxfolio.Series{}, resp.Chart.Error
	}
	if len(resp.Chart.Result) == 0 {
		return fxfolio.Series{}, fmt.Errorf("yahoo chart %s: %w", symbol, fxfolio.ErrNoData)
	}
	return resp.Chart.Result[0].series(symbol), nil
}

// spanOf returns the smallest spark range covering days.
func spanOf(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	default:
		return "3mo"
	}
}

// RecentSeries returns the daily closes of symbols over the last lookbackDays, in one request.
// Symbols unknown to Yahoo are missing from the result. Responses are never cached.
func (c *Client) RecentSeries(ctx context.Context, symbols []string, lookbackDays int) ([]fxfolio.Series, error) {
	ctx = remote.NoCache(ctx)
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("range", spanOf(lookbackDays))
	q.Set("interval", "1d")
	addr := fmt.Sprintf("%s/v7/finance/spark?%s", c.baseURL, q.Encode())

	var resp sparkResponse
	if err := remote.GetJSON(ctx, c.http, addr, &resp); err != nil {
		return nil, fmt.Errorf("yahoo spark %s: %w", strings.Join(symbols, ","), err)
	}
	if resp.Spark.Error != nil {
		return nil, resp.Spark.Error
	}
	var res []fxfolio.Series
	for _, r := range resp.Spark.Result {
		if len(r.Response) == 0 {
			continue
		}
		s := r.Response[0].series(r.Symbol)
		s.Symbol = r.Symbol
		res = append(res, s)
	}
	return res, nil
}

// latestPricePath locates the last traded price in a chart response.
const latestPricePath = "$.chart.result[0].meta.regularMarketPrice"

// LatestRate returns the last traded price of symbol.
func (c *Client) LatestRate(ctx context.Context, symbol string) (float64, error) {
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1d", c.baseURL, url.PathEscape(symbol))
	var jobj any
	if err := remote.GetJSON(remote.NoCache(ctx), c.http, addr, &jobj); err != nil {
		return math.NaN(), fmt.Errorf("yahoo latest %s: %w", symbol, err)
	}
	jval, err := jsonpath.Get(latestPricePath, jobj)
	if err != nil {
		return math.NaN(), fmt.Errorf("yahoo latest %s: %q: %w", symbol, latestPricePath, err)
	}
	// a single answer may still come wrapped in a list
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	val, ok := jval.(float64)
	if !ok || val <= 0 {
		return math.NaN(), fmt.Errorf("yahoo latest %s: invalid price %v", symbol, jval)
	}
	return val, nil
}
