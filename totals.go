package fxfolio

// Allocation is the share of one position in the portfolio totals.
type Allocation struct {
	Ticker       string
	OfValue      Percent
	OfInvestment Percent
}

// PortfolioTotals are the sums over all position metrics.
type PortfolioTotals struct {
	Positions int

	Investment       Money
	CurrentValue     Money
	GainLoss         Money
	DailyChangeValue Money
	Return           Percent

	InvestmentConverted   Money
	CurrentValueConverted Money
	GainLossConverted     Money
	DailyChangeConverted  Money
	ReturnConverted       Percent

	Allocations []Allocation // in the order of the metrics
}

// Aggregate sums metrics into portfolio totals.
//
// Returns are undefined when the total investment is zero. Allocations are computed
// on the converted amounts, they are undefined when the matching total is zero.
func Aggregate(metrics []PositionMetrics) PortfolioTotals {
	t := PortfolioTotals{Positions: len(metrics)}
	for _, m := range metrics {
		t.Investment = t.Investment.Add(m.Investment)
		t.CurrentValue = t.CurrentValue.Add(m.CurrentValue)
		t.GainLoss = t.GainLoss.Add(m.GainLoss)
		t.DailyChangeValue = t.DailyChangeValue.Add(m.DailyChangeValue)

		t.InvestmentConverted = t.InvestmentConverted.Add(m.InvestmentConverted)
		t.CurrentValueConverted = t.CurrentValueConverted.Add(m.CurrentValueConverted)
		t.GainLossConverted = t.GainLossConverted.Add(m.GainLossConverted)
		t.DailyChangeConverted = t.DailyChangeConverted.Add(m.DailyChangeConverted)
	}
	t.Return = Ratio(t.GainLoss.Decimal(), t.Investment.Decimal())
	t.ReturnConverted = Ratio(t.GainLossConverted.Decimal(), t.InvestmentConverted.Decimal())

	t.Allocations = make([]Allocation, 0, len(metrics))
	for _, m := range metrics {
		t.Allocations = append(t.Allocations, Allocation{
			Ticker:       m.Ticker,
			OfValue:      Ratio(m.CurrentValueConverted.Decimal(), t.CurrentValueConverted.Decimal()),
			OfInvestment: Ratio(m.InvestmentConverted.Decimal(), t.InvestmentConverted.Decimal()),
		})
	}
	return t
}

// Allocation returns the allocation of ticker.
func (t PortfolioTotals) Allocation(ticker string) (Allocation, bool) {
	for _, a := range t.Allocations {
		if a.Ticker == ticker {
			return a, true
		}
	}
	return Allocation{}, false
}

func (t PortfolioTotals) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("positions", t.Positions)
	w.Append("investment", t.Investment)
	w.Append("current_value", t.CurrentValue)
	w.Append("gain_loss", t.GainLoss)
	w.Append("daily_change", t.DailyChangeValue)
	w.Append("return_pct", t.Return)
	w.Append("investment_converted", t.InvestmentConverted)
	w.Append("current_value_converted", t.CurrentValueConverted)
	w.Append("gain_loss_converted", t.GainLossConverted)
	w.Append("daily_change_converted", t.DailyChangeConverted)
	w.Append("return_converted_pct", t.ReturnConverted)
	allocations := make([]map[string]any, 0, len(t.Allocations))
	for _, a := range t.Allocations {
		allocations = append(allocations, map[string]any{
			"ticker":            a.Ticker,
			"of_value_pct":      a.OfValue,
			"of_investment_pct": a.OfInvestment,
		})
	}
	w.Append("allocations", allocations)
	return w.MarshalJSON()
}
