package fxfolio

import (
	"github.com/etnz/fxfolio/date"
	"github.com/shopspring/decimal"
)

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// INR is a helper for test to create inr money from const
func INR(v float64) Money { return M(v, "INR") }

// D is a helper for test to create a decimal from const
func D(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// quote is a helper for test to create a quote observed on two consecutive days.
func quote(ticker string, previous, current float64) MarketQuote {
	q, err := NewMarketQuote(ticker, date.New(2024, 1, 4), D(previous), date.New(2024, 1, 5), D(current))
	if err != nil {
		panic(err)
	}
	return q
}

// position is a helper for test to create a position.
func position(ticker string, shares, avgCost float64) Position {
	return Position{Ticker: ticker, Shares: D(shares), AvgCost: USD(avgCost)}
}
