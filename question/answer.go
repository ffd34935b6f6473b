package question

import (
	"regexp"
	"strings"
)

// Notation identifies which answer syntax resolved a block's answer.
type Notation int

const (
	NotationNone Notation = iota
	NotationLetter
	NotationEquals
	NotationText
	NotationPartial
)

func (n Notation) String() string {
	switch n {
	case NotationLetter:
		return "letter"
	case NotationEquals:
		return "equals"
	case NotationText:
		return "text"
	case NotationPartial:
		return "partial"
	default:
		return "none"
	}
}

// Resolution is the outcome of answer resolution. Index is 1-based and
// 0 when nothing matched.
type Resolution struct {
	Index    int
	Notation Notation
}

// InRange reports whether the index points at one of n options.
func (r Resolution) InRange(n int) bool {
	return r.Index >= 1 && r.Index <= n
}

// The answer word must not follow a letter or digit. Underscores count as
// a boundary so __Answer: A.__ matches.
var (
	// Answer: A. / **Answer : A.** / __Answer: A.__ / **Answer:** B / The answer is (C)
	answerLetterRe = regexp.MustCompile(`(?im)(?:^|[^\pL\pN])(?:answer|ans)(?:\s+is)?\s*(?:\*\*|__|\*|_)?\s*[:\-]?\s*(?:\*\*|__|\*|_)?\s*(?:option\s+)?\(?([A-F])(?:[.)*_:]|\s*$)`)

	// Answer : A = Yes
	answerEqualsRe = regexp.MustCompile(`(?im)(?:^|[^\pL\pN])(?:answer|ans)\s*(?:\*\*|__|\*|_)?\s*[:\-]?\s*(?:\*\*|__|\*|_)?\s*([A-F])\s*=`)

	// Answer: <free text>
	answerTextRe = regexp.MustCompile(`(?im)(?:^|[^\pL\pN])(?:answer|ans)(?:\s+is)?\s*(?:\*\*|__|\*|_)?\s*[:\-=]?(.*)$`)
)

// answerNotation is one named rule of the resolver, tried in order.
type answerNotation struct {
	name    string
	kind    Notation
	resolve func(section string, options []string) (int, bool)
}

// answerNotations lists exact notations before fuzzy text matches.
var answerNotations = []answerNotation{
	{"letter", NotationLetter, resolveLetter(answerLetterRe)},
	{"equals", NotationEquals, resolveLetter(answerEqualsRe)},
	{"text", NotationText, resolveText},
	{"partial", NotationPartial, resolvePartial},
}

// resolveAnswer maps the residual's answer notation to a 1-based index.
// The text before any solution marker is searched first so an answer
// quoted inside an explanation does not win over the declared one.
func resolveAnswer(residual string, options []string) Resolution {
	sections := []string{residual}
	if head := beforeExplanation(residual); head != "" && head != residual {
		sections = []string{head, residual}
	}
	for _, sec := range sections {
		for _, n := range answerNotations {
			if idx, ok := n.resolve(sec, options); ok {
				return Resolution{Index: idx, Notation: n.kind}
			}
		}
	}
	return Resolution{}
}

func resolveLetter(re *regexp.Regexp) func(string, []string) (int, bool) {
	return func(section string, _ []string) (int, bool) {
		m := re.FindStringSubmatch(section)
		if m == nil {
			return 0, false
		}
		letter := strings.ToUpper(m[1])[0]
		return int(letter-'A') + 1, true
	}
}

// answerText returns the cleaned free text following the first answer
// marker, or "" when there is none.
func answerText(section string) string {
	m := answerTextRe.FindStringSubmatch(section)
	if m == nil {
		return ""
	}
	t := stripMarkdown(m[1])
	return strings.Trim(t, " \t*_:.-=")
}

func resolveText(section string, options []string) (int, bool) {
	want := answerText(section)
	if want == "" {
		return 0, false
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), want) {
			return i + 1, true
		}
	}
	return 0, false
}

// resolvePartial accepts a containment match in either direction, but
// only when exactly one option matches.
func resolvePartial(section string, options []string) (int, bool) {
	want := strings.ToLower(answerText(section))
	if len([]rune(want)) < 2 {
		return 0, false
	}
	found := 0
	for i, opt := range options {
		o := strings.ToLower(strings.TrimSpace(opt))
		if o == "" {
			continue
		}
		if strings.Contains(o, want) || (len([]rune(o)) >= 2 && strings.Contains(want, o)) {
			if found != 0 {
				return 0, false
			}
			found = i + 1
		}
	}
	return found, found != 0
}
