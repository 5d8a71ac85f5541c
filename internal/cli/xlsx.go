package cli

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/schemarag/internal/models"
)

// ResultSheet is the worksheet that holds exported rows.
const ResultSheet = "Result"

func resultWorkbook(result *models.QueryResult) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ResultSheet); err != nil {
		f.Close()
		return nil, err
	}
	header := make([]interface{}, len(result.Columns))
	for i, c := range result.Columns {
		header[i] = c.Name
	}
	if err := f.SetSheetRow(ResultSheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	for i, row := range result.Rows {
		values := make([]interface{}, len(row.Fields))
		for j, field := range row.Fields {
			values[j] = cellValue(field)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(ResultSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return f, nil
}

// cellValue keeps numbers and booleans typed; everything else is written as display text.
func cellValue(f models.Field) interface{} {
	switch f.Value.(type) {
	case nil:
		return nil
	case int64, int, float64, float32, bool:
		return f.Value
	default:
		return f.String()
	}
}

// ExportXLSX writes result to an .xlsx workbook at path.
func ExportXLSX(path string, result *models.QueryResult) error {
	f, err := resultWorkbook(result)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

// WriteXLSX streams result as an .xlsx workbook to w.
func WriteXLSX(w io.Writer, result *models.QueryResult) error {
	f, err := resultWorkbook(result)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}
