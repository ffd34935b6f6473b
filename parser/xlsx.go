package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser reads question sheets typed into a workbook. Each non-empty
// cell becomes one line, row by row; a blank row becomes a blank line so
// paragraph breaks in explanations survive. Sheets are separated by a
// blank line.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		var lines []string
		for _, row := range rows {
			empty := true
			for _, cell := range row {
				if c := strings.TrimRight(cell, " \t"); strings.TrimSpace(c) != "" {
					lines = append(lines, strings.ReplaceAll(c, "\r\n", "\n"))
					empty = false
				}
			}
			if empty {
				lines = append(lines, "")
			}
		}
		if text := strings.TrimSpace(strings.Join(lines, "\n")); text != "" {
			sheets = append(sheets, text)
		}
	}

	if len(sheets) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}

	return &ParseResult{
		Text:   strings.Join(sheets, "\n\n"),
		Method: "native",
		Metadata: map[string]string{
			"format":      "xlsx",
			"sheet_count": strconv.Itoa(len(sheets)),
		},
	}, nil
}
