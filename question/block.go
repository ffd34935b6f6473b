package question

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// blockState is the block parser's position within one question.
type blockState int

const (
	stateQuestionText blockState = iota
	stateOptions
	stateTerminal
)

const (
	minOptions = 2
	maxOptions = 6
)

// scannedBlock is the output of the line state machine before any
// cleaning is applied.
type scannedBlock struct {
	question []string
	options  []string
	letters  []byte
	residual string
}

// scan runs the QUESTION_TEXT -> OPTIONS -> TERMINAL state machine over
// the block's lines.
func scan(text string, policy ContinuationPolicy) scannedBlock {
	var (
		sb    scannedBlock
		state = stateQuestionText
		cls   = classifier{policy: policy}
		lines = strings.Split(text, "\n")
	)

	terminate := func(i int, head string) {
		rest := lines[i+1:]
		if head != "" {
			rest = append([]string{head}, rest...)
		}
		sb.residual = strings.Join(rest, "\n")
		state = stateTerminal
	}

	for i := 0; i < len(lines) && state != stateTerminal; i++ {
		cl := cls.classify(lines[i])
		switch cl.Kind {
		case LineBlank:
		case LineOptionsHeader:
			state = stateOptions
		case LineOption:
			state = stateOptions
			sb.options = append(sb.options, cl.Text)
			sb.letters = append(sb.letters, cl.Letter)
			if cl.Rest != "" {
				terminate(i, cl.Rest)
			}
		case LineContinuation:
			last := len(sb.options) - 1
			sb.options[last] = strings.TrimSpace(sb.options[last] + " " + cl.Text)
		case LineAnswerMarker, LineExplanationMarker:
			terminate(i, cl.Raw)
		case LineQuestionText:
			if state == stateQuestionText {
				sb.question = append(sb.question, cl.Raw)
				continue
			}
			// Rejected by the continuation policy while listing options.
			if strings.Contains(strings.ToLower(cl.Raw), "answer") {
				terminate(i, cl.Raw)
				continue
			}
			slog.Debug("question: skipping line between options", "line", cl.Raw)
		}
	}
	return sb
}

// lettersSequential reports whether letters run A, B, C... in order.
func lettersSequential(letters []byte) bool {
	for i, l := range letters {
		if l != byte('A'+i) {
			return false
		}
	}
	return true
}

// parseBlock turns one RawBlock into a record. It returns a nil record
// when the block is dropped; the error is only ever ctx.Err().
func (p *Parser) parseBlock(ctx context.Context, b RawBlock) (*Record, []Diagnostic, error) {
	sb := scan(b.Text, p.opts.Continuation)

	if len(sb.options) == 0 {
		if b.Preamble {
			return nil, nil, nil
		}
		return nil, []Diagnostic{newDiagnostic(KindMalformedBlock, b, "no options found")}, nil
	}
	if len(sb.options) < minOptions || len(sb.options) > maxOptions {
		return nil, []Diagnostic{newDiagnostic(KindMalformedBlock, b,
			"%d options, want %d to %d", len(sb.options), minOptions, maxOptions)}, nil
	}

	var diags []Diagnostic
	if !lettersSequential(sb.letters) {
		diags = append(diags, newDiagnostic(KindNonSequentialOptions, b,
			"option letters %q", string(sb.letters)))
	}

	rec := &Record{Number: b.Number}

	question, d, err := p.clean(ctx, b, strings.Join(sb.question, " "))
	if err != nil {
		return nil, nil, err
	}
	diags = append(diags, d...)
	rec.Question = question

	rec.Options = make([]string, len(sb.options))
	for i, opt := range sb.options {
		text, d, err := p.clean(ctx, b, opt)
		if err != nil {
			return nil, nil, err
		}
		diags = append(diags, d...)
		if text == "" {
			return nil, append(diags, newDiagnostic(KindMalformedBlock, b,
				"option %c is empty", sb.letters[i])), nil
		}
		rec.Options[i] = text
	}

	meta, residual := extractMeta(sb.residual)
	normalize(rec, p.opts.Defaults, meta)

	res := resolveAnswer(residual, rec.Options)
	rec.Answer = res.Index
	switch {
	case res.Notation == NotationNone:
		rec.NeedsReview = true
		diags = append(diags, newDiagnostic(KindAmbiguousAnswer, b, "no answer notation matched"))
	case !res.InRange(rec.OptionCount):
		rec.NeedsReview = true
		diags = append(diags, newDiagnostic(KindAnswerOutOfRange, b,
			"answer %d via %s notation, block has %d options", res.Index, res.Notation, rec.OptionCount))
	}

	if cols := p.opts.OptionColumns; cols > 0 && rec.OptionCount > cols {
		rec.NeedsReview = true
		msg := fmt.Sprintf("%d options, the table holds %d", rec.OptionCount, cols)
		if rec.Answer > cols {
			msg += fmt.Sprintf("; answer %d is not written", rec.Answer)
		}
		diags = append(diags, newDiagnostic(KindOptionsTruncated, b, "%s", msg))
	}

	explanation, d, err := p.media.rewrite(ctx, b, rawExplanation(residual))
	if err != nil {
		return nil, nil, err
	}
	diags = append(diags, d...)
	rec.Explanation = formatExplanation(explanation, p.opts.BreakToken)
	return rec, diags, nil
}

// clean uploads inline images and strips markdown from a single-line
// field.
func (p *Parser) clean(ctx context.Context, b RawBlock, s string) (string, []Diagnostic, error) {
	s, diags, err := p.media.rewrite(ctx, b, s)
	if err != nil {
		return "", nil, err
	}
	return trimStrayEmphasis(stripMarkdown(s)), diags, nil
}
