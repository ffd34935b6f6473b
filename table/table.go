// Package table serializes question records into the question-bank import
// layout, as CSV or XLSX.
package table

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ebinesh25/gen-hyre-csv/question"
)

// ErrUnknownSchema is returned by ParseSchema for unrecognised names.
var ErrUnknownSchema = errors.New("table: unknown schema")

// Schema selects the column layout.
type Schema int

const (
	// SchemaLegacy is the import template: four option columns followed by
	// five unnamed trailing columns.
	SchemaLegacy Schema = iota
	// SchemaVariable sizes the option columns to the widest record.
	SchemaVariable
)

const legacyOptionColumns = 4

// legacyTrailingColumns is the number of blank columns the import
// template carries after Answer Explanation.
const legacyTrailingColumns = 5

func (s Schema) String() string {
	switch s {
	case SchemaLegacy:
		return "legacy"
	case SchemaVariable:
		return "variable"
	default:
		return fmt.Sprintf("Schema(%d)", int(s))
	}
}

// ParseSchema maps a name from config or a query string to a Schema.
// The empty string selects SchemaLegacy.
func ParseSchema(name string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "legacy", "fixed":
		return SchemaLegacy, nil
	case "variable", "dynamic":
		return SchemaVariable, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
}

// Writer renders records in one schema. The zero value writes the legacy
// schema with the default break token.
type Writer struct {
	Schema     Schema
	BreakToken string
}

func (w Writer) breakToken() string {
	if w.BreakToken == "" {
		return question.DefaultBreakToken
	}
	return w.BreakToken
}

// OptionLimit returns the most options a row can hold, or 0 when the
// columns grow to fit.
func (w Writer) OptionLimit() int {
	if w.Schema == SchemaLegacy {
		return legacyOptionColumns
	}
	return 0
}

// OptionColumns returns the number of option columns used for records.
func (w Writer) OptionColumns(records []question.Record) int {
	if w.Schema == SchemaLegacy {
		return legacyOptionColumns
	}
	n := 0
	for _, rec := range records {
		if len(rec.Options) > n {
			n = len(rec.Options)
		}
	}
	if n == 0 {
		return legacyOptionColumns
	}
	return n
}

// Header returns the header row for a table with optionColumns options.
func (w Writer) Header(optionColumns int) []string {
	h := []string{"Question Type", "Question", "Option count"}
	for i := 1; i <= optionColumns; i++ {
		h = append(h, "Options"+strconv.Itoa(i))
	}
	h = append(h, "Answer", "Category", "Difficulty", "Score", "Tags", "Answer Explanation")
	if w.Schema == SchemaLegacy {
		for i := 0; i < legacyTrailingColumns; i++ {
			h = append(h, "")
		}
	}
	return h
}

// cells returns one typed row. Integers stay integers so the XLSX writer
// can store them as numbers.
func (w Writer) cells(rec question.Record, optionColumns int) []any {
	opts := rec.Options
	truncated := len(opts) > optionColumns
	if truncated {
		slog.Warn("table: truncating options",
			"number", rec.Number, "options", len(opts), "columns", optionColumns, "answer", rec.Answer)
		opts = opts[:optionColumns]
	}

	row := make([]any, 0, optionColumns+14)
	row = append(row, rec.QuestionType, rec.Question, len(opts))
	for i := 0; i < optionColumns; i++ {
		if i < len(opts) {
			row = append(row, opts[i])
		} else {
			row = append(row, "")
		}
	}

	// An answer pointing at a dropped option is left blank. Other out of
	// range answers are written as resolved.
	var answer any = ""
	if rec.Answer > 0 && !(truncated && rec.Answer > len(opts)) {
		answer = rec.Answer
	}
	row = append(row, answer, rec.Category, rec.Difficulty, rec.Score, rec.Tags, rec.Explanation)
	if w.Schema == SchemaLegacy {
		for i := 0; i < legacyTrailingColumns; i++ {
			row = append(row, "")
		}
	}
	return row
}

// Rows returns the header followed by one string row per record.
func (w Writer) Rows(records []question.Record) [][]string {
	n := w.OptionColumns(records)
	out := make([][]string, 0, len(records)+1)
	out = append(out, w.Header(n))
	for _, rec := range records {
		cells := w.cells(rec, n)
		row := make([]string, len(cells))
		for i, c := range cells {
			switch v := c.(type) {
			case string:
				row[i] = v
			case int:
				row[i] = strconv.Itoa(v)
			default:
				row[i] = fmt.Sprint(v)
			}
		}
		out = append(out, row)
	}
	return out
}
