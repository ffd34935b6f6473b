package question

import (
	"regexp"
	"strings"
)

// LineKind tags one line of a block.
type LineKind int

const (
	LineBlank LineKind = iota
	LineQuestionText
	LineOptionsHeader
	LineOption
	LineContinuation
	LineAnswerMarker
	LineExplanationMarker
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineQuestionText:
		return "question-text"
	case LineOptionsHeader:
		return "options-header"
	case LineOption:
		return "option"
	case LineContinuation:
		return "option-continuation"
	case LineAnswerMarker:
		return "answer-marker"
	case LineExplanationMarker:
		return "explanation-marker"
	default:
		return "unknown"
	}
}

// ClassifiedLine is a line together with its tag and payload.
type ClassifiedLine struct {
	Kind   LineKind
	Raw    string
	Letter byte   // option letter, LineOption only
	Text   string // option text without the marker
	Rest   string // trailing answer marker found on an option line
}

// ContinuationPolicy decides whether a non-marker line that follows an
// option belongs to that option.
type ContinuationPolicy interface {
	Continues(line string) bool
}

// ContinuationFunc adapts a function to ContinuationPolicy.
type ContinuationFunc func(line string) bool

func (f ContinuationFunc) Continues(line string) bool { return f(line) }

// DefaultContinuation merges a line into the previous option unless it
// opens with bold markup or mentions an answer.
var DefaultContinuation ContinuationPolicy = ContinuationFunc(func(line string) bool {
	t := strings.TrimSpace(line)
	if strings.HasPrefix(t, "**") || strings.HasPrefix(t, "__") {
		return false
	}
	return !strings.Contains(strings.ToLower(t), "answer")
})

var (
	optionsHeaderRe = regexp.MustCompile(`(?i)^(?:#{1,6}\s*)?(?:\*\*|__)?\s*options\s*(?:\*\*|__)?\s*:?\s*(?:\*\*|__)?\s*:?$`)

	// A. / A\. / A) / A = / **A.** / **A. text**
	optionRe = regexp.MustCompile(`^(?:\*\*|__)?\s*([A-F])(\\\.|\.|\)|\s*=)(.*)$`)

	answerMarkerRe      = regexp.MustCompile(`(?i)^(?:\*\*|__|\*|_)?\s*(?:(?:correct|right)\s+)?(?:answer|ans)\s*(?:\*\*|__|\*|_)?\s*[:\-=]`)
	explanationMarkerRe = regexp.MustCompile(`(?i)^(?:#{1,6}\s*)?(?:\*\*|__)?\s*(?:solution|explanation)\b`)

	// An answer marker embedded after an option's text.
	inlineAnswerRe = regexp.MustCompile(`(?i)\s*(?:(?:\*\*|__)\s*|\b)answer\s*(?:\*\*|__)?\s*:`)
)

// matcher is one named rule in the classification cascade.
type matcher struct {
	name  string
	match func(line string) (ClassifiedLine, bool)
}

// matchers is evaluated in order; the first hit wins. Continuation is
// context dependent and handled by the classifier after this list.
var matchers = []matcher{
	{"options-header", matchOptionsHeader},
	{"option", matchOption},
	{"answer-marker", matchPattern(answerMarkerRe, LineAnswerMarker)},
	{"explanation-marker", matchPattern(explanationMarkerRe, LineExplanationMarker)},
}

func matchOptionsHeader(line string) (ClassifiedLine, bool) {
	if !optionsHeaderRe.MatchString(line) {
		return ClassifiedLine{}, false
	}
	return ClassifiedLine{Kind: LineOptionsHeader, Raw: line}, true
}

func matchOption(line string) (ClassifiedLine, bool) {
	m := optionRe.FindStringSubmatch(line)
	if m == nil {
		return ClassifiedLine{}, false
	}
	delim, text := m[2], m[3]
	// "E.g." and "I.e." are prose, not options. "A.Yes" is an option.
	if delim == "." && len(text) >= 2 && text[0] >= 'a' && text[0] <= 'z' && text[1] == '.' {
		return ClassifiedLine{}, false
	}
	text = strings.TrimLeft(text, " \t")
	text = strings.TrimPrefix(strings.TrimPrefix(text, "**"), "__")
	var rest string
	if loc := inlineAnswerRe.FindStringIndex(text); loc != nil {
		rest = strings.TrimSpace(text[loc[0]:])
		text = text[:loc[0]]
	}
	text = trimStrayEmphasis(strings.TrimSpace(text))
	return ClassifiedLine{
		Kind:   LineOption,
		Raw:    line,
		Letter: m[1][0],
		Text:   text,
		Rest:   rest,
	}, true
}

func matchPattern(re *regexp.Regexp, kind LineKind) func(string) (ClassifiedLine, bool) {
	return func(line string) (ClassifiedLine, bool) {
		if !re.MatchString(line) {
			return ClassifiedLine{}, false
		}
		return ClassifiedLine{Kind: kind, Raw: line}, true
	}
}

// classifier tags lines of one block. afterOption tracks whether an
// option was seen with no section marker since.
type classifier struct {
	policy      ContinuationPolicy
	afterOption bool
}

func (c *classifier) classify(raw string) ClassifiedLine {
	line := strings.TrimSpace(raw)
	if line == "" {
		return ClassifiedLine{Kind: LineBlank, Raw: line}
	}
	for _, m := range matchers {
		if cl, ok := m.match(line); ok {
			switch cl.Kind {
			case LineOption:
				c.afterOption = cl.Rest == ""
			case LineAnswerMarker, LineExplanationMarker, LineOptionsHeader:
				c.afterOption = false
			}
			return cl
		}
	}
	if c.afterOption && c.policy.Continues(line) {
		return ClassifiedLine{Kind: LineContinuation, Raw: line, Text: line}
	}
	return ClassifiedLine{Kind: LineQuestionText, Raw: line}
}

// trimStrayEmphasis drops an unbalanced leading or trailing ** or __
// left over from a bold marker that wrapped the option letter.
func trimStrayEmphasis(s string) string {
	for _, mark := range []string{"**", "__"} {
		if strings.Count(s, mark)%2 == 0 {
			continue
		}
		switch {
		case strings.HasSuffix(s, mark):
			s = strings.TrimSpace(strings.TrimSuffix(s, mark))
		case strings.HasPrefix(s, mark):
			s = strings.TrimSpace(strings.TrimPrefix(s, mark))
		}
	}
	return s
}
