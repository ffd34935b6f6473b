package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ebinesh25/gen-hyre-csv/question"
)

// WriteCSV writes records to out in schema with the default break token.
func WriteCSV(out io.Writer, records []question.Record, schema Schema) error {
	return Writer{Schema: schema}.WriteCSV(out, records)
}

// WriteCSV writes the header and one line per record. Quoting is decided
// per field by needsQuotes, never left to a heuristic.
func (w Writer) WriteCSV(out io.Writer, records []question.Record) error {
	bw := bufio.NewWriter(out)
	for _, row := range w.Rows(records) {
		if err := writeCSVRow(bw, row, w.breakToken()); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

func writeCSVRow(bw *bufio.Writer, row []string, breakToken string) error {
	for i, field := range row {
		if i > 0 {
			bw.WriteByte(',')
		}
		if !needsQuotes(field, breakToken) {
			bw.WriteString(field)
			continue
		}
		bw.WriteByte('"')
		bw.WriteString(strings.ReplaceAll(field, `"`, `""`))
		bw.WriteByte('"')
	}
	_, err := bw.WriteString("\n")
	return err
}

// needsQuotes reports whether field must be quoted: it holds the
// delimiter, a quote, a line break or the break token, or it has
// leading or trailing whitespace.
func needsQuotes(field, breakToken string) bool {
	if field == "" {
		return false
	}
	if strings.ContainsAny(field, ",\"\r\n") {
		return true
	}
	if breakToken != "" && strings.Contains(field, breakToken) {
		return true
	}
	return strings.TrimSpace(field) != field
}

// ReadCSV reads every row of a CSV table, tolerating rows of uneven
// length.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return rows, nil
}
