package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// escapedLineLimit is the number of real line breaks below which a file
// that contains literal "\n" sequences is treated as a flattened export.
const escapedLineLimit = 5

// TextParser handles plain text and markdown files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "md", "markdown"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	text, unescaped := normalizeText(string(data))

	meta := map[string]string{"format": FormatOf(path)}
	if unescaped {
		meta["unescaped_newlines"] = "true"
	}
	return &ParseResult{
		Text:     text,
		Method:   "native",
		Metadata: meta,
	}, nil
}

// normalizeText drops a UTF-8 BOM, unifies line endings and expands
// literal "\n" escapes in files that were flattened onto a few lines.
func normalizeText(s string) (string, bool) {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if strings.Contains(s, `\n`) && strings.Count(s, "\n") < escapedLineLimit {
		return strings.ReplaceAll(s, `\n`, "\n"), true
	}
	return s, false
}
