package question

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// RawBlock is the span of document text covering one question. Text is
// a substring of the document with the question-number prefix removed.
type RawBlock struct {
	Index    int
	Number   int // question number as written, 0 for the preamble
	Line     int // 1-based line of the number marker
	Text     string
	Preamble bool
}

// DefaultTopicKeywords mark section headers such as "Quantitative
// Aptitude" that sit between numbered questions.
var DefaultTopicKeywords = []string{"aptitude", "reasoning", "quantitative", "technical"}

// 12. / **12.** / 12\. / ### 12.
// The tail is checked by hand: a following digit or dot means a decimal.
var questionStartRe = regexp.MustCompile(`^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*|__)?[ \t]*(\d{1,4})(?:\\\.|\.)(?:\*\*|__)?`)

// questionStart reports whether line opens a new question, returning the
// number and the byte offset where the question text begins.
func questionStart(line string) (int, int, bool) {
	loc := questionStartRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return 0, 0, false
	}
	tail := line[loc[1]:]
	if tail != "" && (tail[0] == '.' || (tail[0] >= '0' && tail[0] <= '9')) {
		return 0, 0, false
	}
	n, err := strconv.Atoi(line[loc[2]:loc[3]])
	if err != nil {
		return 0, 0, false
	}
	return n, loc[1], true
}

// segmenter splits a document into question blocks.
type segmenter struct {
	keywords []string
}

// split partitions doc at question-number lines. Section headers and
// empty trailing blocks are dropped here; everything else is handed to
// the block parser.
func (s segmenter) split(doc string) []RawBlock {
	var (
		raw       []RawBlock
		cur       = RawBlock{Preamble: true, Line: 1}
		bodyStart = 0
		lineNo    = 0
	)
	for offset := 0; offset < len(doc); {
		end := strings.IndexByte(doc[offset:], '\n')
		if end < 0 {
			end = len(doc)
		} else {
			end += offset
		}
		lineNo++
		line := strings.TrimSuffix(doc[offset:end], "\r")
		if n, tail, ok := questionStart(line); ok {
			cur.Text = doc[bodyStart:offset]
			raw = append(raw, cur)
			cur = RawBlock{Index: len(raw), Number: n, Line: lineNo}
			bodyStart = offset + tail
		}
		offset = end + 1
	}
	cur.Text = doc[bodyStart:]
	raw = append(raw, cur)

	blocks := make([]RawBlock, 0, len(raw))
	for i, b := range raw {
		empty := strings.TrimSpace(b.Text) == ""
		switch {
		case empty && (b.Preamble || i == len(raw)-1):
			continue
		case !empty && s.isSectionHeader(b):
			slog.Debug("question: discarding section header", "line", b.Line, "text", firstLine(b.Text))
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// isSectionHeader applies the false-positive rules to the block's first
// non-blank line. A block that carries option lines is always kept.
func (s segmenter) isSectionHeader(b RawBlock) bool {
	first := stripMarkdown(firstLine(b.Text))
	if first == "" {
		return false
	}
	if len([]rune(first)) >= 100 || strings.Contains(first, "?") || countDigits(first) >= 3 {
		return false
	}
	header := mostlyUpper(first) || s.hasKeyword(first) ||
		(b.Preamble && isLowerFragment(first))
	if !header {
		return false
	}
	return !hasOptionLine(b.Text)
}

func (s segmenter) hasKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range s.keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// mostlyUpper reports whether more than 70% of the letters (at least
// three) are upper case.
func mostlyUpper(s string) bool {
	letters, upper := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return letters >= 3 && float64(upper)/float64(letters) > 0.7
}

// isLowerFragment matches the tail of a sentence that spilled over from
// the previous page: lower-case start, longer than 30 characters.
func isLowerFragment(s string) bool {
	r := []rune(s)
	return len(r) > 30 && unicode.IsLower(r[0])
}

func hasOptionLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if _, ok := matchOption(strings.TrimSpace(line)); ok {
			return true
		}
	}
	return false
}
