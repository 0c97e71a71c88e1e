package export

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the report.
const SheetName = "Отчёт"

const maxColWidth = 80

// WriteXLSX writes doc as a two-column workbook: the title in a merged bold
// first row, then one row per label/value pair. Columns are sized to their
// longest value.
func WriteXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetCellValue(SheetName, "A1", doc.Title); err != nil {
		return err
	}
	if err := f.MergeCell(SheetName, "A1", "B1"); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", "B1", titleStyle); err != nil {
		return err
	}

	widths := [2]int{0, 0}
	for i, row := range doc.Rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+2)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+2)

		if err := f.SetCellStr(SheetName, labelCell, row.Label); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, labelCell, labelCell, labelStyle); err != nil {
			return err
		}
		if err := setValue(f, valueCell, row); err != nil {
			return err
		}
		widths[0] = max(widths[0], utf8.RuneCountInString(row.Label))
		widths[1] = max(widths[1], utf8.RuneCountInString(row.Value))
	}

	for i, col := range []string{"A", "B"} {
		width := float64(min(widths[i]+2, maxColWidth))
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func setValue(f *excelize.File, cell string, row Row) error {
	if row.Numeric {
		// accept the decimal comma
		value := strings.Replace(strings.TrimSpace(row.Value), ",", ".", 1)
		if d, err := decimal.NewFromString(value); err == nil {
			v, _ := d.Float64()
			return f.SetCellFloat(SheetName, cell, v, -1, 64)
		}
	}
	return f.SetCellStr(SheetName, cell, row.Value)
}
