// Package question extracts multiple-choice question records from loosely
// formatted document text.
//
// A document is split into numbered blocks, each block is run through a
// small line state machine (question text, options, residual), and the
// residual is handed to the answer resolver and the explanation extractor.
// Problems are reported as Diagnostics next to the records; a bad block
// never stops the rest of the document.
package question

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultUploadTimeout bounds a single inline-image upload.
const DefaultUploadTimeout = 30 * time.Second

// Options configures a Parser. The zero value is usable; New fills in
// defaults for every empty field.
type Options struct {
	Defaults      Defaults
	BreakToken    string
	TopicKeywords []string
	Uploader      ImageUploader
	UploadTimeout time.Duration
	Continuation  ContinuationPolicy

	// OptionColumns is the number of option columns the output table
	// holds. Wider blocks are kept whole but flagged OptionsTruncated.
	// Zero means unlimited.
	OptionColumns int
}

// Result holds everything ParseDocument produced.
type Result struct {
	Records     []Record     `json:"records"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Flagged returns the records that need manual review.
func (r *Result) Flagged() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.NeedsReview {
			out = append(out, rec)
		}
	}
	return out
}

// Parser turns document text into records. A Parser holds only
// immutable configuration and is safe for concurrent use.
type Parser struct {
	opts  Options
	seg   segmenter
	media mediaRewriter
}

// New returns a Parser for opts.
func New(opts Options) *Parser {
	opts.Defaults = opts.Defaults.withFallback(StandardDefaults())
	if opts.BreakToken == "" {
		opts.BreakToken = DefaultBreakToken
	}
	if opts.TopicKeywords == nil {
		opts.TopicKeywords = DefaultTopicKeywords
	}
	opts.TopicKeywords = append([]string(nil), opts.TopicKeywords...)
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.Continuation == nil {
		opts.Continuation = DefaultContinuation
	}
	return &Parser{
		opts:  opts,
		seg:   segmenter{keywords: opts.TopicKeywords},
		media: mediaRewriter{uploader: opts.Uploader, timeout: opts.UploadTimeout},
	}
}

// WithDefaults returns a copy of p that applies d instead of its own
// defaults. Empty fields of d keep p's values.
func (p *Parser) WithDefaults(d Defaults) *Parser {
	opts := p.opts
	opts.Defaults = d.withFallback(p.opts.Defaults)
	return New(opts)
}

// WithOptionColumns returns a copy of p that flags blocks wider than n
// options. Zero removes the limit.
func (p *Parser) WithOptionColumns(n int) *Parser {
	opts := p.opts
	opts.OptionColumns = n
	return New(opts)
}

// Options returns the parser's effective configuration.
func (p *Parser) Options() Options {
	return p.opts
}

// ParseDocument extracts every record from text. Per-block problems are
// returned as diagnostics. The only error is cancellation of ctx, in
// which case the records completed so far are returned with it.
func (p *Parser) ParseDocument(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	res := &Result{}
	for _, b := range p.seg.split(text) {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("parse interrupted before block %d: %w", b.Index, err)
		}
		rec, diags, err := p.parseBlock(ctx, b)
		if err != nil {
			return res, fmt.Errorf("parse interrupted in block %d: %w", b.Index, err)
		}
		for _, d := range diags {
			if d.Kind == KindMalformedBlock {
				slog.Debug("question: dropping block", "block", d.Block, "number", d.Number, "reason", d.Message)
			}
		}
		res.Diagnostics = append(res.Diagnostics, diags...)
		if rec != nil {
			res.Records = append(res.Records, *rec)
		}
	}
	return res, nil
}

var categorySuffixRe = regexp.MustCompile(`(?i)(?:[\s_-]+test)?(?:[\s_-]+db)?$`)

// CategoryFromFilename derives a category from a question file name,
// e.g. "Synonyms Test -DB.txt" gives "Synonyms".
func CategoryFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = categorySuffixRe.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}
