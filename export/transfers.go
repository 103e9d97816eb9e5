// Package export writes conversion and analysis results to CSV, XLSX and JSON files.
package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/etnz/fxfolio"
	"github.com/xuri/excelize/v2"
)

// Default output files of the transfer conversion.
const (
	TransfersCSV  = "transfers_with_inr.csv"
	TransfersXLSX = "transfers_with_inr.xlsx"
)

// RateColumn is the header of the rate column added to converted transfers.
func RateColumn(from, to string) string { return fmt.Sprintf("Exchange Rate (%s to %s)", from, to) }

// ConvertedColumn is the header of the converted amount column.
func ConvertedColumn(to string) string { return fmt.Sprintf("Cash Amount (in %s)", to) }

// TransferSheet is the in memory form of the converted transfers table.
type TransferSheet struct {
	Header []string
	Rows   []TransferRow
}

// TransferRow is an input row followed by the rate and the converted amount.
type TransferRow struct {
	Cells     []string
	Rate      float64 // 4 places
	Converted float64 // rounded to the target currency
}

// NewTransferSheet appends the rate and converted amount columns to the input table.
func NewTransferSheet(header []string, transfers []fxfolio.ConvertedTransfer, from, to string) *TransferSheet {
	s := &TransferSheet{Header: append(append([]string{}, header...), RateColumn(from, to), ConvertedColumn(to))}
	for _, t := range transfers {
		s.Rows = append(s.Rows, TransferRow{
			Cells:     t.Row,
			Rate:      t.Rate.Value.Round(4).InexactFloat64(),
			Converted: t.Converted.Float(),
		})
	}
	return s
}

// records returns the sheet as text cells.
func (s *TransferSheet) records() [][]string {
	res := [][]string{s.Header}
	for _, r := range s.Rows {
		rec := append(append([]string{}, r.Cells...), fmt.Sprintf("%.4f", r.Rate), fmt.Sprintf("%.2f", r.Converted))
		res = append(res, rec)
	}
	return res
}

// WriteCSV writes the sheet to path.
func (s *TransferSheet) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(s.records()); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX writes the sheet to path, the added columns as numbers.
func (s *TransferSheet) WriteXLSX(path string) error {
	const sheet = "Transfers"
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	if err := setRow(f, sheet, 1, toRow(s.Header)); err != nil {
		return err
	}
	for i, r := range s.Rows {
		row := toRow(r.Cells)
		row = append(row, r.Rate, r.Converted)
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if err := styleHeader(f, sheet, len(s.Header)); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func toRow(cells []string) []any {
	row := make([]any, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

// setRow writes values on line 'row' (1-based) from column A.
func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// styleHeader makes the first line bold and frozen.
func styleHeader(f *excelize.File, sheet string, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(max(cols, 1))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
