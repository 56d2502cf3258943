package handler

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-freight-documents/internal/document"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteLinesXLSX writes the document's lines as a one-sheet workbook. Priced
// types get rate and amount columns and a total row.
func WriteLinesXLSX(w io.Writer, t document.Type, h document.Header, lines []document.LineItem) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Lines"
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	title := []interface{}{t.Label, h.Series}
	if err := f.SetSheetRow(sheet, "A1", &title); err != nil {
		return fmt.Errorf("failed to write title: %w", err)
	}

	header := []interface{}{"Line", "Item", "UOM", "Quantity"}
	if t.Priced {
		header = append(header, "Rate", "Amount")
	}
	header = append(header, "Remarks")
	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	row := 4
	total := decimal.Zero
	for _, l := range lines {
		values := []interface{}{l.LineNumber, l.ItemLabel, l.UOMLabel, l.Quantity.InexactFloat64()}
		if t.Priced {
			values = append(values, l.Rate.InexactFloat64(), l.Amount.InexactFloat64())
			total = total.Add(l.Amount)
		}
		values = append(values, l.Remarks)

		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write line %d: %w", l.LineNumber, err)
		}
		row++
	}

	if t.Priced {
		// label under Rate, sum under Amount
		cell, err := excelize.CoordinatesToCellName(5, row)
		if err != nil {
			return err
		}
		totals := []interface{}{"Total", total.InexactFloat64()}
		if err := f.SetSheetRow(sheet, cell, &totals); err != nil {
			return fmt.Errorf("failed to write total row: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
