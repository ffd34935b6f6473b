package question

import "testing"

func TestStripMarkdown(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain text", "plain text"},
		{"**bold** and *em*", "bold and em"},
		{"__bold__ words", "bold words"},
		{"`code` span", "code span"},
		{"[a link](https://example.com)", "a link"},
		{"## Heading", "Heading"},
		{`2 \* 3 = 6`, "2 * 3 = 6"},
		{"fish &amp; chips", "fish & chips"},
		{"see ![fig](https://cdn.example.com/a.png) here", "see ![fig](https://cdn.example.com/a.png) here"},
		{"<https://example.com>", "https://example.com"},
		{"If x<y and y>z, which holds?", "If x<y and y>z, which holds?"},
		{"a <b>bold</b> tag", "a <b>bold</b> tag"},
		{"<div>", "<div>"},
		{"- item", "- item"},
		{"3. third", "3. third"},
		{"  spaced   out  ", "spaced out"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := stripMarkdown(tt.in); got != tt.want {
				t.Errorf("stripMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
