package fxfolio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/etnz/fxfolio/date"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Table is a header row and data rows read from a CSV or XLSX file.
type Table struct {
	Path   string
	Header []string
	Rows   [][]string
}

// ReadTable reads a table from a .csv file or from the first sheet of a .xlsx file.
// Errors are *InputError.
func ReadTable(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &InputError{Kind: FileNotFound, Path: path, Err: err}
		}
		return nil, &InputError{Kind: Unreadable, Path: path, Err: err}
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	default:
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, &InputError{Kind: Unreadable, Path: path, Err: err}
	}
	if len(records) == 0 {
		return nil, &InputError{Kind: Unreadable, Path: path, Err: errors.New("empty file, a header row is required")}
	}

	header := records[0]
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &Table{Path: path, Header: header, Rows: records[1:]}, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheet")
	}
	return f.GetRows(sheets[0])
}

// Columns returns the index of each required column.
// Column names are matched case-insensitively, ignoring surrounding spaces.
// If some are missing it returns an *InputError listing them.
func (t *Table) Columns(required ...string) (map[string]int, error) {
	index := make(map[string]int, len(required))
	var missing []string
	for _, name := range required {
		found := -1
		for i, h := range t.Header {
			if strings.EqualFold(h, strings.TrimSpace(name)) {
				found = i
				break
			}
		}
		if found < 0 {
			missing = append(missing, name)
			continue
		}
		index[name] = found
	}
	if len(missing) > 0 {
		return nil, &InputError{Kind: MissingColumns, Path: t.Path, Missing: missing, Available: t.Header}
	}
	return index, nil
}

// cell returns the trimmed cell at column i of row, or "" if the row is shorter.
func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// parseAmount parses a monetary cell, tolerating currency symbols, thousand separators
// and accounting parentheses for negatives.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if neg {
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", "₹", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// blank reports whether every cell of row is empty, spreadsheets often end with such rows.
func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Position columns.
const (
	ColTicker  = "ticker"
	ColShares  = "shares_held"
	ColAvgCost = "avg_cost_usd"
)

// Position is one portfolio holding.
type Position struct {
	Ticker  string
	Shares  decimal.Decimal // > 0
	AvgCost Money           // > 0, per share, source currency
}

// LoadPositions reads positions from path.
//
// Rows with an empty ticker or a non numeric, zero or negative amount are dropped and counted.
func LoadPositions(path, currency string) (positions []Position, dropped int, err error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, 0, err
	}
	cols, err := t.Columns(ColTicker, ColShares, ColAvgCost)
	if err != nil {
		return nil, 0, err
	}
	for _, row := range t.Rows {
		if blank(row) {
			continue
		}
		ticker := strings.ToUpper(cell(row, cols[ColTicker]))
		shares, err1 := parseAmount(cell(row, cols[ColShares]))
		cost, err2 := parseAmount(cell(row, cols[ColAvgCost]))
		if ticker == "" || err1 != nil || err2 != nil || !shares.IsPositive() || !cost.IsPositive() {
			dropped++
			continue
		}
		positions = append(positions, Position{Ticker: ticker, Shares: shares, AvgCost: M(cost, currency)})
	}
	if len(positions) == 0 {
		return nil, dropped, &InputError{Kind: NoValidRows, Path: path, Dropped: dropped}
	}
	return positions, dropped, nil
}

// Transfer columns.
const (
	ColDate   = "Date"
	ColAmount = "Cash Amount (in USD)"
)

// Transfer is a dated cash movement in the source currency.
type Transfer struct {
	Date   date.Date
	Amount Money
	Row    []string // every original cell, aligned on TransferTable.Header
}

// TransferTable is the list of valid transfers and the header of the table they come from.
type TransferTable struct {
	Header    []string
	Transfers []Transfer
}

// Dates returns the unique transfer dates, in first-seen order.
func (t *TransferTable) Dates() []date.Date {
	seen := make(map[date.Date]bool)
	var days []date.Date
	for _, tr := range t.Transfers {
		if !seen[tr.Date] {
			seen[tr.Date] = true
			days = append(days, tr.Date)
		}
	}
	return days
}

// LoadTransfers reads transfers from path.
//
// Rows with an invalid date or a non numeric amount are dropped and counted.
func LoadTransfers(path, currency string) (*TransferTable, int, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, 0, err
	}
	cols, err := t.Columns(ColDate, ColAmount)
	if err != nil {
		return nil, 0, err
	}
	res := &TransferTable{Header: t.Header}
	dropped := 0
	for _, row := range t.Rows {
		if blank(row) {
			continue
		}
		on, err1 := date.ParseAny(cell(row, cols[ColDate]))
		amount, err2 := parseAmount(cell(row, cols[ColAmount]))
		if err1 != nil || err2 != nil {
			dropped++
			continue
		}
		padded := make([]string, len(t.Header))
		copy(padded, row)
		res.Transfers = append(res.Transfers, Transfer{Date: on, Amount: M(amount, currency), Row: padded})
	}
	if len(res.Transfers) == 0 {
		return nil, dropped, &InputError{Kind: NoValidRows, Path: path, Dropped: dropped}
	}
	return res, dropped, nil
}
