package table

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ebinesh25/gen-hyre-csv/question"
)

// ErrNoExplanationColumn is returned when a CSV has no Answer Explanation
// header.
var ErrNoExplanationColumn = errors.New("table: no 'Answer Explanation' column")

const explanationHeader = "Answer Explanation"

// ExpandBreaksCSV copies a question CSV from r to w, turning break tokens
// in the Answer Explanation column into real newlines. A token preceded
// by a stray '*' left over from bold markup is expanded along with it.
// It returns the number of rows changed.
func ExpandBreaksCSV(r io.Reader, w io.Writer, breakToken string) (int, error) {
	if breakToken == "" {
		breakToken = question.DefaultBreakToken
	}
	rows, err := ReadCSV(r)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, ErrNoExplanationColumn
	}
	col := -1
	for i, name := range rows[0] {
		if strings.TrimSpace(name) == explanationHeader {
			col = i
			break
		}
	}
	if col < 0 {
		return 0, ErrNoExplanationColumn
	}

	changed := 0
	bw := bufio.NewWriter(w)
	for i, row := range rows {
		if i > 0 && col < len(row) && row[col] != "" {
			v := strings.ReplaceAll(row[col], "*"+breakToken, "\n")
			v = question.ExpandBreaks(v, breakToken)
			if v != row[col] {
				row[col] = v
				changed++
			}
		}
		// The token is gone from the data, so quoting falls back to the
		// structural characters.
		if err := writeCSVRow(bw, row, ""); err != nil {
			return changed, err
		}
	}
	if err := bw.Flush(); err != nil {
		return changed, fmt.Errorf("writing csv: %w", err)
	}
	return changed, nil
}

// ExpandBreaksFile rewrites the CSV at path in place. The new content is
// written to a temporary file in the same directory and renamed over the
// original.
func ExpandBreaksFile(path, breakToken string) (int, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".expand-*.csv")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := ExpandBreaksCSV(in, tmp, breakToken)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	in.Close()
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return n, nil
}
