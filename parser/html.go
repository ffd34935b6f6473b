package parser

import (
	"context"
	"fmt"
	"os"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// HTMLParser converts HTML exports of question documents to markdown.
// Bold labels survive as **...** and inline <img> data URLs as ![](...).
type HTMLParser struct {
	conv *converter.Converter
}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HTML file: %w", err)
	}
	text, err := p.Convert(string(data))
	if err != nil {
		return nil, err
	}
	return &ParseResult{
		Text:     text,
		Method:   "html",
		Metadata: map[string]string{"format": FormatOf(path)},
	}, nil
}

// Convert renders an HTML string as markdown.
func (p *HTMLParser) Convert(html string) (string, error) {
	md, err := p.conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("converting HTML: %w", err)
	}
	text, _ := normalizeText(md)
	return text, nil
}
