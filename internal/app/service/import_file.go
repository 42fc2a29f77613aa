package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ImportColumn describes one column of the bulk import sheet.
type ImportColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Example     string `json:"example"`
}

// ImportColumns is the column layout the catalog's zip-preview endpoint reads.
var ImportColumns = []ImportColumn{
	{Name: "productTitle", Description: "Product title; rows with the same title form one product", Required: true, Example: "Linen Shirt"},
	{Name: "description", Description: "Product description", Example: "Relaxed fit"},
	{Name: "category", Description: "Category breadcrumb or leaf name", Required: true, Example: "Tops > Shirts"},
	{Name: "color", Description: "Active color name", Required: true, Example: "Red"},
	{Name: "size", Description: "Active size code or label", Required: true, Example: "M"},
	{Name: "price", Description: "Unit price, 0 or more", Required: true, Example: "29000"},
	{Name: "quantity", Description: "Stock, whole number of 0 or more", Required: true, Example: "10"},
	{Name: "images", Description: "Image file names inside the attached zips, separated by ;", Example: "red-1.jpg;red-2.jpg"},
}

const (
	importSheetName = "Products"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func isXLSX(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".xlsx")
}

// xlsxToCSV converts the first sheet of a workbook to CSV.
func xlsxToCSV(r io.Reader) ([]byte, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in XLSX file")
	}

	// GetRows trims trailing empty cells; pad to the header width
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		record := make([]string, width)
		for i, cell := range row {
			record[i] = strings.TrimSpace(strings.TrimSuffix(cell, " *"))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// WriteImportTemplate writes an XLSX workbook with the import header row.
// Required columns are marked with a trailing " *", which conversion strips.
func WriteImportTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", importSheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, col := range ImportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		header := col.Name
		style := headerStyle
		if col.Required {
			header += " *"
			style = requiredStyle
		}
		if err := f.SetCellValue(importSheetName, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(importSheetName, cell, cell, style); err != nil {
			return err
		}

		example, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(importSheetName, example, col.Example); err != nil {
			return err
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(importSheetName, colName, colName, 20); err != nil {
			return err
		}
	}

	return f.Write(w)
}
