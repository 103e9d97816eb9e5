// Package fxfolio enriches transfer records and stock positions with exchange rates
// and market prices, and derives gain/loss, allocation and daily-move metrics from them.
//
// The core functionalities include:
//   - Input Loading: Reading transfers and positions from CSV or XLSX tables, dropping
//     rows with unusable amounts and reporting missing columns.
//   - Market Data: A Source abstraction over historical and recent close series, the
//     immutable RateCache and MarketData maps built from it by the fetch package.
//   - Metrics: Pure computation of per-position metrics in the source and converted
//     currency, and per-transfer conversion at the rate of the transfer date.
//   - Aggregation: Portfolio totals, allocation and threshold-based suggestions.
//
// This package serves as the foundational logic for the `fxf` command-line tool.
package fxfolio
