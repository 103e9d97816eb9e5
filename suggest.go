package fxfolio

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Thresholds tune the suggestion rules. Amounts are in the converted currency.
type Thresholds struct {
	VolatileDailyLoss  float64 `mapstructure:"volatile_daily_loss"`   // total daily change below it is volatile
	BookProfitGain     float64 `mapstructure:"book_profit_gain"`      // gain above it may be booked
	BookProfitDailyPct float64 `mapstructure:"book_profit_daily_pct"` // when the day moved above it
	BuyMoreGain        float64 `mapstructure:"buy_more_gain"`         // gain below it may be averaged down
	BuyMoreDailyPct    float64 `mapstructure:"buy_more_daily_pct"`    // when the day moved below it
	Top                int     `mapstructure:"top"`                   // candidates per list
}

// DefaultThresholds returns the default suggestion thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VolatileDailyLoss:  -1000,
		BookProfitGain:     50000,
		BookProfitDailyPct: 2.0,
		BuyMoreGain:        0,
		BuyMoreDailyPct:    -1.0,
		Top:                3,
	}
}

// Mood summarizes the portfolio move of the day.
type Mood int

const (
	Stable Mood = iota
	Volatile
)

func (m Mood) String() string {
	if m == Volatile {
		return "volatile"
	}
	return "stable"
}

func (m Mood) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Suggestions are the outcome of the suggestion rules.
type Suggestions struct {
	Mood        Mood
	DailyChange Money             // converted, summed over positions
	BookProfit  []PositionMetrics // best daily move first
	BuyMore     []PositionMetrics // worst daily move first
}

// Suggest applies the threshold rules to metrics.
//
// Positions with an undefined daily change are never candidates. Ties keep the metrics order.
func Suggest(metrics []PositionMetrics, th Thresholds) Suggestions {
	var s Suggestions
	for _, m := range metrics {
		s.DailyChange = s.DailyChange.Add(m.DailyChangeConverted)
	}
	if s.DailyChange.Decimal().LessThan(decimal.NewFromFloat(th.VolatileDailyLoss)) {
		s.Mood = Volatile
	}

	profitGain := decimal.NewFromFloat(th.BookProfitGain)
	buyGain := decimal.NewFromFloat(th.BuyMoreGain)
	for _, m := range metrics {
		pct, ok := m.DailyChangePct.Value()
		if !ok {
			continue
		}
		gain := m.GainLossConverted.Decimal()
		if gain.GreaterThan(profitGain) && pct > th.BookProfitDailyPct {
			s.BookProfit = append(s.BookProfit, m)
		}
		if gain.LessThan(buyGain) && pct < th.BuyMoreDailyPct {
			s.BuyMore = append(s.BuyMore, m)
		}
	}
	slices.SortStableFunc(s.BookProfit, func(a, b PositionMetrics) int {
		return comparePercentDesc(a.DailyChangePct, b.DailyChangePct)
	})
	slices.SortStableFunc(s.BuyMore, func(a, b PositionMetrics) int {
		av, _ := a.DailyChangePct.Value()
		bv, _ := b.DailyChangePct.Value()
		return cmp.Compare(av, bv)
	})
	s.BookProfit = top(s.BookProfit, th.Top)
	s.BuyMore = top(s.BuyMore, th.Top)
	return s
}

func top(ms []PositionMetrics, n int) []PositionMetrics {
	if n >= 0 && len(ms) > n {
		return ms[:n]
	}
	return ms
}

func (s Suggestions) MarshalJSON() ([]byte, error) {
	tickers := func(ms []PositionMetrics) []string {
		res := make([]string, 0, len(ms))
		for _, m := range ms {
			res = append(res, m.Ticker)
		}
		return res
	}
	var w jsonObjectWriter
	w.Append("mood", s.Mood)
	w.Append("daily_change", s.DailyChange)
	w.Append("book_profit", tickers(s.BookProfit))
	w.Append("buy_more", tickers(s.BuyMore))
	return w.MarshalJSON()
}
