package fxfolio

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// PositionMetrics are the metrics derived from a position, its quote and an exchange rate.
//
// Amounts are kept at full precision, use Money.Round or Money.String for presentation.
type PositionMetrics struct {
	Ticker   string
	Shares   decimal.Decimal
	AvgCost  Money
	Current  Money
	Previous Money
	Rate     Rate

	DailyChange      Money // per share
	DailyChangePct   Percent
	DailyChangeValue Money // DailyChange * Shares
	Investment       Money
	CurrentValue     Money
	GainLoss         Money
	GainLossPct      Percent

	DailyChangeConverted  Money
	InvestmentConverted   Money
	CurrentValueConverted Money
	GainLossConverted     Money
}

// ComputeMetrics derives the metrics of position p quoted by q, converted to currency 'to' at rate.
func ComputeMetrics(p Position, q MarketQuote, rate Rate, to string) PositionMetrics {
	src := p.AvgCost.Currency()
	current := M(q.Current, src)
	previous := M(q.Previous, src)

	m := PositionMetrics{
		Ticker:   p.Ticker,
		Shares:   p.Shares,
		AvgCost:  p.AvgCost,
		Current:  current,
		Previous: previous,
		Rate:     rate,
	}
	m.DailyChange = current.Sub(previous)
	m.DailyChangePct = Ratio(m.DailyChange.Decimal(), previous.Decimal())
	m.DailyChangeValue = m.DailyChange.Mul(p.Shares)
	m.Investment = p.AvgCost.Mul(p.Shares)
	m.CurrentValue = current.Mul(p.Shares)
	m.GainLoss = m.CurrentValue.Sub(m.Investment)
	m.GainLossPct = Ratio(m.GainLoss.Decimal(), m.Investment.Decimal())

	m.DailyChangeConverted = m.DailyChangeValue.Convert(rate.Value, to)
	m.InvestmentConverted = m.Investment.Convert(rate.Value, to)
	m.CurrentValueConverted = m.CurrentValue.Convert(rate.Value, to)
	m.GainLossConverted = m.GainLoss.Convert(rate.Value, to)
	return m
}

// ComputeAll computes the metrics of every position quoted in data.
// Positions without a quote are skipped and their tickers returned once in missing, in input order.
// The result is sorted by converted current value, descending.
func ComputeAll(positions []Position, data MarketData, rate Rate, to string) (metrics []PositionMetrics, missing []string, err error) {
	for _, p := range positions {
		q, ok := data[p.Ticker]
		if !ok {
			if !slices.Contains(missing, p.Ticker) {
				missing = append(missing, p.Ticker)
			}
			continue
		}
		metrics = append(metrics, ComputeMetrics(p, q, rate, to))
	}
	if len(metrics) == 0 {
		return nil, missing, ErrNoValidPositions
	}
	SortMetrics(metrics, ByValue)
	return metrics, missing, nil
}

// SortKey selects a sort order for position metrics.
type SortKey string

const (
	ByValue       SortKey = "value"       // converted current value, descending
	ByInvestment  SortKey = "investment"  // converted investment, descending
	ByDailyChange SortKey = "daily"       // daily change percent, descending, undefined last
	ByTicker      SortKey = "ticker"      // alphabetical
)

// ParseSortKey parses a SortKey.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case ByValue, ByInvestment, ByDailyChange, ByTicker:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q, want one of value, investment, daily, ticker", s)
}

// SortMetrics sorts metrics in place. The sort is stable.
func SortMetrics(metrics []PositionMetrics, key SortKey) {
	slices.SortStableFunc(metrics, func(a, b PositionMetrics) int {
		switch key {
		case ByInvestment:
			return b.InvestmentConverted.Cmp(a.InvestmentConverted)
		case ByDailyChange:
			return comparePercentDesc(a.DailyChangePct, b.DailyChangePct)
		case ByTicker:
			return cmp.Compare(a.Ticker, b.Ticker)
		default:
			return b.CurrentValueConverted.Cmp(a.CurrentValueConverted)
		}
	})
}

// comparePercentDesc orders defined percents descending, then undefined ones.
func comparePercentDesc(a, b Percent) int {
	av, aok := a.Value()
	bv, bok := b.Value()
	switch {
	case aok && bok:
		return cmp.Compare(bv, av)
	case aok:
		return -1
	case bok:
		return 1
	}
	return 0
}

func (m PositionMetrics) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("ticker", m.Ticker)
	w.Append("shares", m.Shares)
	w.Append("avg_cost", m.AvgCost)
	w.Append("current_price", m.Current)
	w.Append("previous_close", m.Previous)
	w.Append("exchange_rate", m.Rate.Value)
	w.Append("rate_provenance", m.Rate.Provenance)
	w.Append("daily_change", m.DailyChange)
	w.Append("daily_change_pct", m.DailyChangePct)
	w.Append("daily_change_value", m.DailyChangeValue)
	w.Append("investment", m.Investment)
	w.Append("current_value", m.CurrentValue)
	w.Append("gain_loss", m.GainLoss)
	w.Append("gain_loss_pct", m.GainLossPct)
	w.Append("daily_change_converted", m.DailyChangeConverted)
	w.Append("investment_converted", m.InvestmentConverted)
	w.Append("current_value_converted", m.CurrentValueConverted)
	w.Append("gain_loss_converted", m.GainLossConverted)
	return w.MarshalJSON()
}

// ConvertedTransfer is a transfer and its amount converted at the rate of its date.
type ConvertedTransfer struct {
	Transfer
	Rate      Rate
	Converted Money
}

// ConvertTransfers converts every transfer to currency 'to' using the rate cached for its date.
func ConvertTransfers(transfers []Transfer, rates RateCache, to string) ([]ConvertedTransfer, error) {
	res := make([]ConvertedTransfer, 0, len(transfers))
	for _, t := range transfers {
		r, ok := rates.Lookup(t.Date)
		if !ok {
			return nil, fmt.Errorf("no rate cached for %s", t.Date)
		}
		res = append(res, ConvertedTransfer{
			Transfer:  t,
			Rate:      r,
			Converted: t.Amount.Convert(r.Value, to),
		})
	}
	return res, nil
}

// TransferSummary sums converted transfers.
type TransferSummary struct {
	Count          int
	Total          Money
	TotalConverted Money
	AvgRate        decimal.Decimal
	MinRate        decimal.Decimal
	MaxRate        decimal.Decimal
	Fallbacks      int // transfers converted at the fallback rate
}

// SummarizeTransfers returns the summary of transfers. Rate statistics are per transfer.
func SummarizeTransfers(transfers []ConvertedTransfer) TransferSummary {
	var s TransferSummary
	if len(transfers) == 0 {
		return s
	}
	s.Count = len(transfers)
	s.MinRate, s.MaxRate = transfers[0].Rate.Value, transfers[0].Rate.Value
	sum := decimal.Zero
	for _, t := range transfers {
		s.Total = s.Total.Add(t.Amount)
		s.TotalConverted = s.TotalConverted.Add(t.Converted)
		sum = sum.Add(t.Rate.Value)
		s.MinRate = decimal.Min(s.MinRate, t.Rate.Value)
		s.MaxRate = decimal.Max(s.MaxRate, t.Rate.Value)
		if t.Rate.Provenance == Fallback {
			s.Fallbacks++
		}
	}
	s.AvgRate = sum.Div(decimal.NewFromInt(int64(s.Count)))
	return s
}
