package question

import (
	"regexp"
	"strings"
)

// DefaultBreakToken is the in-band marker that stands for a line break
// inside a single table cell: a backslash followed by n.
const DefaultBreakToken = `\n`

var (
	// Solution/Explanation at the start of a line, in any emphasis.
	explanationLineRe = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*|__)?[ \t]*(?:solution|explanation)\b[ \t]*(?:\*\*|__)?[ \t]*:?[ \t]*(?:\*\*|__)?[ \t]*:?`)

	// **Solution:** anywhere in a line.
	explanationBoldRe = regexp.MustCompile(`(?i)(?:\*\*|__)[ \t]*(?:solution|explanation)\b[ \t]*:?[ \t]*(?:\*\*|__)?[ \t]*:?`)

	answerWordRe = regexp.MustCompile(`(?i)answer`)
)

// beforeExplanation returns the residual up to the first explanation
// marker.
func beforeExplanation(residual string) string {
	if loc := explanationLineRe.FindStringIndex(residual); loc != nil {
		return residual[:loc[0]]
	}
	if loc := explanationBoldRe.FindStringIndex(residual); loc != nil {
		return residual[:loc[0]]
	}
	return residual
}

// rawExplanation isolates the explanation text in the residual. Without
// a Solution or Explanation marker it falls back to whatever follows the
// first mention of "answer".
func rawExplanation(residual string) string {
	if loc := explanationLineRe.FindStringIndex(residual); loc != nil {
		return residual[loc[1]:]
	}
	if loc := explanationBoldRe.FindStringIndex(residual); loc != nil {
		return residual[loc[1]:]
	}
	if loc := answerWordRe.FindStringIndex(residual); loc != nil {
		return strings.TrimLeft(residual[loc[1]:], " \t*_:")
	}
	return ""
}

// formatExplanation strips markdown from each line, folds runs of blank
// lines into one, and joins the lines with the break token.
func formatExplanation(raw, breakToken string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		clean := trimStrayEmphasis(stripMarkdown(line))
		if clean == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, clean)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, breakToken)
}

// ExpandBreaks turns break tokens back into newlines.
func ExpandBreaks(s, breakToken string) string {
	if breakToken == "" {
		breakToken = DefaultBreakToken
	}
	return strings.ReplaceAll(s, breakToken, "\n")
}

// CollapseBreaks is the inverse of ExpandBreaks for text that already
// went through formatExplanation.
func CollapseBreaks(s, breakToken string) string {
	if breakToken == "" {
		breakToken = DefaultBreakToken
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", breakToken)
}
