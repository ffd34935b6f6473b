package table

import (
	"fmt"
	"io"

	"github.com/ebinesh25/gen-hyre-csv/question"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the XLSX writer fills.
const SheetName = "Questions"

// WriteXLSX writes records to out as a single-sheet workbook in schema.
func WriteXLSX(out io.Writer, records []question.Record, schema Schema) error {
	return Writer{Schema: schema}.WriteXLSX(out, records)
}

// WriteXLSX writes the same rows as WriteCSV into an XLSX workbook. Counts,
// answers and scores are stored as numbers.
func (w Writer) WriteXLSX(out io.Writer, records []question.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	n := w.OptionColumns(records)
	header := w.Header(n)
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := w.cells(rec, n)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}
