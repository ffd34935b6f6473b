package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

// Parse extracts the plain text of every page. Pages are separated by a
// blank line; pages that fail to extract are skipped.
func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]string, 0, totalPages)
	skipped := 0

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("pdf: skipping page", "path", path, "page", i, "error", err)
			skipped++
			continue
		}

		text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
		if text == "" {
			continue
		}
		pages = append(pages, text)
	}

	return &ParseResult{
		Text:   strings.Join(pages, "\n\n"),
		Method: "native",
		Metadata: map[string]string{
			"format":        "pdf",
			"page_count":    strconv.Itoa(totalPages),
			"pages_skipped": strconv.Itoa(skipped),
		},
	}, nil
}
