// Package parser converts question documents into the markdown-flavoured
// text the question parser consumes.
package parser

import "context"

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Text     string // Document text, one source line or paragraph per line
	Method   string // "native", "markdown", "html"
	Metadata map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
