// Package hyrecsv converts question documents (DOCX, PDF, Markdown, text,
// HTML, PPTX, XLSX) into question-bank import tables.
//
// A Converter reads a document as text, extracts multiple-choice records
// with the question package, optionally uploads inline images and
// persists the result, and writes CSV or XLSX tables with the table
// package.
package hyrecsv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebinesh25/gen-hyre-csv/media"
	"github.com/ebinesh25/gen-hyre-csv/parser"
	"github.com/ebinesh25/gen-hyre-csv/question"
	"github.com/ebinesh25/gen-hyre-csv/store"
	"github.com/ebinesh25/gen-hyre-csv/table"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Converter is the main entry point for document conversion.
type Converter interface {
	// ConvertText extracts records from already-extracted document text.
	ConvertText(ctx context.Context, text string, opts ...ConvertOption) (*Result, error)

	// ConvertFile reads a document and extracts its records. With a store
	// configured, an unchanged document (same content hash) is served from
	// the store instead of being parsed again.
	ConvertFile(ctx context.Context, path string, opts ...ConvertOption) (*Result, error)

	// ConvertBatch converts documents concurrently. A failing document
	// never stops the others; results keep the input order.
	ConvertBatch(ctx context.Context, paths []string, opts ...ConvertOption) []BatchResult

	// WriteTable writes records as "csv" or "xlsx" in the configured schema.
	WriteTable(w io.Writer, records []question.Record, format string) error

	// ListDocuments returns all stored documents.
	ListDocuments(ctx context.Context) ([]store.Document, error)

	// Store returns the underlying store, or nil when persistence is off.
	Store() *store.Store

	// Close releases the store if the converter opened it.
	Close() error
}

// Result is the outcome of converting one document.
type Result struct {
	Path        string                `json:"path,omitempty"`
	Format      string                `json:"format,omitempty"`
	RunID       string                `json:"run_id"`
	DocumentID  int64                 `json:"document_id,omitempty"`
	Skipped     bool                  `json:"skipped,omitempty"` // unchanged; loaded from the store
	Records     []question.Record     `json:"records"`
	Diagnostics []question.Diagnostic `json:"diagnostics,omitempty"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
}

// Flagged returns the records that need manual review.
func (r *Result) Flagged() []question.Record {
	var out []question.Record
	for _, rec := range r.Records {
		if rec.NeedsReview {
			out = append(out, rec)
		}
	}
	return out
}

// BatchResult pairs an input path with its conversion outcome.
type BatchResult struct {
	Path   string  `json:"path"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// Option configures a Converter.
type Option func(*converter)

// WithUploader sets the inline image uploader, overriding Config.Media.
func WithUploader(u question.ImageUploader) Option {
	return func(c *converter) { c.uploader = u }
}

// WithStore uses s for persistence, overriding Config.DB. The caller keeps
// ownership of s.
func WithStore(s *store.Store) Option {
	return func(c *converter) { c.store = s }
}

// WithRegistry replaces the document parser registry.
func WithRegistry(r *parser.Registry) Option {
	return func(c *converter) { c.parsers = r }
}

// ConvertOption configures a single conversion.
type ConvertOption func(*convertOptions)

type convertOptions struct {
	category     string
	schema       *table.Schema
	forceReparse bool
	metadata     map[string]string
}

// WithCategory sets the category and tags of every record that does not
// declare its own.
func WithCategory(category string) ConvertOption {
	return func(o *convertOptions) { o.category = category }
}

// WithSchema flags records that do not fit schema's option columns
// instead of the configured schema's.
func WithSchema(schema table.Schema) ConvertOption {
	return func(o *convertOptions) { o.schema = &schema }
}

// WithForceReparse parses the document even if its hash hasn't changed.
func WithForceReparse() ConvertOption {
	return func(o *convertOptions) { o.forceReparse = true }
}

// WithMetadata attaches custom metadata to the stored document.
func WithMetadata(metadata map[string]string) ConvertOption {
	return func(o *convertOptions) { o.metadata = metadata }
}

// converter is the concrete implementation of Converter.
type converter struct {
	cfg       Config
	schema    table.Schema
	parsers   *parser.Registry
	questions *question.Parser
	uploader  question.ImageUploader
	store     *store.Store
	ownsStore bool

	mu     sync.RWMutex
	closed bool
}

// New creates a Converter from cfg.
func New(cfg Config, opts ...Option) (Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &converter{cfg: cfg, schema: cfg.TableSchema()}
	for _, o := range opts {
		o(c)
	}

	if c.parsers == nil {
		c.parsers = parser.NewRegistry()
	}

	if c.uploader == nil && cfg.Media.Dir != "" {
		fs, err := media.NewFSStore(cfg.Media.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening media store: %w", err)
		}
		u := media.NewBlobUploader(fs, cfg.Media.BaseURL)
		u.Prefix = cfg.Media.Prefix
		if cfg.Media.MaxImageBytes > 0 {
			u.MaxBytes = int(cfg.Media.MaxImageBytes)
		}
		c.uploader = u
	}

	if c.store == nil && cfg.DB.DSN != "" {
		s, err := store.Open(context.Background(), cfg.DB.Driver, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		c.store, c.ownsStore = s, true
	}

	c.questions = question.New(cfg.questionOptions(c.uploader))
	return c, nil
}

// parserFor returns the question parser for one conversion.
func (c *converter) parserFor(path string, o *convertOptions) *question.Parser {
	category := o.category
	if category == "" && c.cfg.CategoryFromFilename && path != "" {
		category = question.CategoryFromFilename(path)
	}
	p := c.questions
	if o.schema != nil {
		p = p.WithOptionColumns(table.Writer{Schema: *o.schema}.OptionLimit())
	}
	if category != "" {
		p = p.WithDefaults(question.Defaults{Category: category, Tags: category})
	}
	return p
}

// metaSettings is the document metadata key holding the parser settings
// a stored conversion was made with.
const metaSettings = "conversion_settings"

// settingsKey identifies the parser settings that shape stored records.
func settingsKey(p *question.Parser) string {
	o := p.Options()
	d := o.Defaults
	return fmt.Sprintf("category=%s;difficulty=%s;score=%d;tags=%s;break=%s;columns=%d",
		d.Category, d.Difficulty, d.Score, d.Tags, o.BreakToken, o.OptionColumns)
}

// ConvertText extracts records from text.
func (c *converter) ConvertText(ctx context.Context, text string, opts ...ConvertOption) (*Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	options := &convertOptions{}
	for _, o := range opts {
		o(options)
	}

	res := &Result{RunID: uuid.NewString(), Format: "text"}
	parsed, err := c.parserFor("", options).ParseDocument(ctx, text)
	if parsed != nil {
		res.Records, res.Diagnostics = parsed.Records, parsed.Diagnostics
	}
	if err != nil {
		return res, err
	}
	if len(res.Records) == 0 {
		return res, ErrNoQuestions
	}
	return res, nil
}

// ConvertFile processes one document through the full pipeline.
func (c *converter) ConvertFile(ctx context.Context, path string, opts ...ConvertOption) (*Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	options := &convertOptions{}
	for _, o := range opts {
		o(options)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	filename := filepath.Base(absPath)
	format := parser.FormatOf(absPath)
	if _, err := c.parsers.Get(format); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return nil, fmt.Errorf("hashing file: %w", err)
	}
	qp := c.parserFor(absPath, options)
	settings := settingsKey(qp)

	if c.store != nil && !options.forceReparse {
		if res, ok := c.loadUnchanged(ctx, absPath, hash, settings); ok {
			slog.Info("convert: document unchanged", "file", filename, "doc_id", res.DocumentID)
			return res, nil
		}
	}

	res := &Result{Path: absPath, Format: format, RunID: uuid.NewString()}
	if c.store != nil {
		metadata := make(map[string]string, len(options.metadata)+1)
		for k, v := range options.metadata {
			metadata[k] = v
		}
		metadata[metaSettings] = settings
		res.DocumentID, err = c.store.UpsertDocument(ctx, store.Document{
			Path:        absPath,
			Filename:    filename,
			Format:      format,
			ContentHash: hash,
			ParseMethod: "pending",
			Status:      store.StatusPending,
			RunID:       res.RunID,
			Metadata:    metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("upserting document: %w", err)
		}
	}

	slog.Info("convert: parsing document", "file", filename, "format", format, "run_id", res.RunID)
	start := time.Now()

	text, err := c.parsers.Parse(ctx, absPath)
	if err != nil {
		c.markFailed(ctx, res.DocumentID)
		return nil, fmt.Errorf("%w: %s: %v", ErrParsingFailed, filename, err)
	}
	res.Metadata = text.Metadata

	parsed, err := qp.ParseDocument(ctx, text.Text)
	if parsed != nil {
		res.Records, res.Diagnostics = parsed.Records, parsed.Diagnostics
	}
	if err != nil {
		c.markFailed(ctx, res.DocumentID)
		return res, fmt.Errorf("converting %s: %w", filename, err)
	}

	if c.store != nil {
		if err := c.store.ReplaceQuestions(ctx, res.DocumentID, res.Records, res.Diagnostics); err != nil {
			c.markFailed(ctx, res.DocumentID)
			return res, fmt.Errorf("storing questions: %w", err)
		}
	}

	slog.Info("convert: document ready",
		"file", filename, "method", text.Method,
		"records", len(res.Records), "diagnostics", len(res.Diagnostics),
		"flagged", len(res.Flagged()), "elapsed", time.Since(start).Round(time.Millisecond))

	if len(res.Records) == 0 {
		c.markFailed(ctx, res.DocumentID)
		return res, fmt.Errorf("%w: %s", ErrNoQuestions, filename)
	}
	return res, nil
}

// loadUnchanged serves a stored conversion when the document hash and the
// parser settings match.
func (c *converter) loadUnchanged(ctx context.Context, path, hash, settings string) (*Result, bool) {
	doc, err := c.store.GetDocumentByPath(ctx, path)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("convert: document lookup failed", "file", path, "error", err)
		}
		return nil, false
	}
	if doc.ContentHash != hash || doc.Status != store.StatusReady {
		return nil, false
	}
	if doc.Metadata[metaSettings] != settings {
		slog.Debug("convert: settings changed", "file", path)
		return nil, false
	}

	records, err := c.store.ListQuestions(ctx, doc.ID)
	if err != nil {
		slog.Warn("convert: loading stored questions failed", "file", path, "error", err)
		return nil, false
	}
	diags, err := c.store.ListDiagnostics(ctx, doc.ID)
	if err != nil {
		slog.Warn("convert: loading stored diagnostics failed", "file", path, "error", err)
		return nil, false
	}
	return &Result{
		Path:        path,
		Format:      doc.Format,
		RunID:       doc.RunID,
		DocumentID:  doc.ID,
		Skipped:     true,
		Records:     records,
		Diagnostics: diags,
		Metadata:    doc.Metadata,
	}, true
}

func (c *converter) markFailed(ctx context.Context, docID int64) {
	if c.store == nil || docID == 0 {
		return
	}
	// The caller's ctx may already be cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := c.store.UpdateDocumentStatus(ctx, docID, store.StatusError); err != nil {
		slog.Warn("convert: marking document failed", "doc_id", docID, "error", err)
	}
}

// ConvertBatch converts paths with at most Config.Workers documents in
// flight.
func (c *converter) ConvertBatch(ctx context.Context, paths []string, opts ...ConvertOption) []BatchResult {
	results := make([]BatchResult, len(paths))

	var g errgroup.Group
	if c.cfg.Workers > 0 {
		g.SetLimit(c.cfg.Workers)
	}
	for i, p := range paths {
		results[i].Path = p
		g.Go(func() error {
			res, err := c.ConvertFile(ctx, p, opts...)
			results[i].Result, results[i].Err = res, err
			if err != nil {
				slog.Warn("convert: document failed", "file", p, "error", err)
			}
			return nil
		})
	}
	g.Wait()
	return results
}

// WriteTable writes records in the configured schema.
func (c *converter) WriteTable(w io.Writer, records []question.Record, format string) error {
	tw := table.Writer{Schema: c.schema, BreakToken: c.cfg.BreakToken}
	switch strings.ToLower(format) {
	case "", "csv":
		return tw.WriteCSV(w, records)
	case "xlsx":
		return tw.WriteXLSX(w, records)
	}
	return fmt.Errorf("%w: output format %q", ErrInvalidConfig, format)
}

// ListDocuments returns all stored documents.
func (c *converter) ListDocuments(ctx context.Context) ([]store.Document, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.store == nil {
		return nil, ErrNoStore
	}
	return c.store.ListDocuments(ctx)
}

// Store returns the underlying store.
func (c *converter) Store() *store.Store {
	return c.store
}

// Close shuts down the converter.
func (c *converter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ownsStore && c.store != nil {
		return c.store.Close()
	}
	return nil
}

func (c *converter) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrStoreClosed
	}
	return nil
}

// OutputName returns the table file name for an input document, e.g.
// "Synonyms Test -DB.docx" gives "Synonyms Test -DB_questions.csv".
func OutputName(path, format string) string {
	if format == "" {
		format = "csv"
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "document"
	}
	return stem + "_questions." + strings.ToLower(format)
}

// InputFiles expands directories in paths to the documents they contain
// whose extension reg can parse. Plain files are kept as given.
func InputFiles(paths []string, reg *parser.Registry) ([]string, error) {
	if reg == nil {
		reg = parser.NewRegistry()
	}
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), "~$") {
				return nil
			}
			if _, err := reg.Get(parser.FormatOf(path)); err == nil {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}
	return out, nil
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
