package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ebinesh25/gen-hyre-csv/question"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "github.com/mattn/go-sqlite3"    // driver: sqlite3
)

// ErrNotFound is returned when a document lookup matches no row.
var ErrNotFound = errors.New("store: document not found")

// ErrUnsupportedDriver is returned by Open for an unknown driver name.
var ErrUnsupportedDriver = errors.New("store: unsupported driver")

// Document status values.
const (
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusError   = "error"
)

// Document represents a row in the documents table.
type Document struct {
	ID              int64             `json:"id"`
	Path            string            `json:"path"`
	Filename        string            `json:"filename"`
	Format          string            `json:"format"`
	ContentHash     string            `json:"content_hash"`
	ParseMethod     string            `json:"parse_method"`
	Status          string            `json:"status"`
	RunID           string            `json:"run_id"`
	QuestionCount   int               `json:"question_count"`
	DiagnosticCount int               `json:"diagnostic_count"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Stats summarises the store contents.
type Stats struct {
	Documents   int `json:"documents"`
	Questions   int `json:"questions"`
	Flagged     int `json:"flagged"`
	Diagnostics int `json:"diagnostics"`
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// parseDriver maps the accepted driver spellings onto a dialect.
func parseDriver(name string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return dialectSQLite, nil
	case "postgres", "postgresql", "pg", "pgx":
		return dialectPostgres, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedDriver, name)
}

// Store persists converted documents, their questions and diagnostics in
// SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), "sqlite", dbPath)
}

// Open connects to driver ("sqlite" or "postgres") at dsn, creates the
// schema and applies pending migrations. For SQLite the dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	d, err := parseDriver(driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch d {
	case dialectSQLite:
		db, err = openSQLite(dsn)
	case dialectPostgres:
		if dsn == "" {
			dsn = "postgres://localhost:5432/hyrecsv?sslmode=disable"
		}
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL(d)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{db: db, dialect: d}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = "hyrecsv.db"
	}
	memory := path == ":memory:"
	if !memory && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating db directory: %w", err)
			}
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Each connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the normalised driver name, "sqlite" or "postgres".
func (s *Store) Driver() string {
	return s.dialect.String()
}

// --- Document operations ---

const documentColumns = `id, path, filename, format, content_hash, parse_method, status,
	run_id, question_count, diagnostic_count, metadata, created_at, updated_at`

// UpsertDocument inserts or updates a document record keyed by path.
// Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return 0, err
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO documents (path, filename, format, content_hash, parse_method, status, run_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			content_hash = excluded.content_hash,
			parse_method = excluded.parse_method,
			status = excluded.status,
			run_id = excluded.run_id,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`), doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.ParseMethod,
		doc.Status, doc.RunID, meta).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting document %s: %w", doc.Path, err)
	}
	return id, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+documentColumns+" FROM documents WHERE path = ?"), path)
	return scanDocument(row)
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+documentColumns+" FROM documents WHERE id = ?"), id)
	return scanDocument(row)
}

// ListDocuments returns all documents, most recently updated first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus updates just the status field.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?"),
		status, id)
	return err
}

// DeleteDocument removes a document; its questions and diagnostics
// cascade.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM questions WHERE document_id = ?",
			"DELETE FROM diagnostics WHERE document_id = ?",
			"DELETE FROM documents WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, s.rebind(q), id); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Question operations ---

// ReplaceQuestions swaps a document's questions and diagnostics for a new
// set in one transaction and marks the document ready.
func (s *Store) ReplaceQuestions(ctx context.Context, docID int64, records []question.Record, diags []question.Diagnostic) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM questions WHERE document_id = ?"), docID); err != nil {
			return fmt.Errorf("clearing questions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM diagnostics WHERE document_id = ?"), docID); err != nil {
			return fmt.Errorf("clearing diagnostics: %w", err)
		}

		qstmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO questions (document_id, position, number, question_type, question, options,
				option_count, answer, category, difficulty, score, tags, explanation, needs_review)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return err
		}
		defer qstmt.Close()

		for i, r := range records {
			opts, err := json.Marshal(r.Options)
			if err != nil {
				return err
			}
			if _, err := qstmt.ExecContext(ctx, docID, i, r.Number, r.QuestionType, r.Question,
				string(opts), r.OptionCount, r.Answer, r.Category, r.Difficulty, r.Score,
				r.Tags, r.Explanation, r.NeedsReview); err != nil {
				return fmt.Errorf("inserting question %d: %w", i, err)
			}
		}

		dstmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO diagnostics (document_id, kind, block, number, line, message, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return err
		}
		defer dstmt.Close()

		for _, d := range diags {
			var detail string
			if d.Err != nil {
				detail = d.Err.Error()
			}
			if _, err := dstmt.ExecContext(ctx, docID, d.Kind.String(), d.Block, d.Number,
				d.Line, d.Message, detail); err != nil {
				return fmt.Errorf("inserting diagnostic: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE documents SET question_count = ?, diagnostic_count = ?, status = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`), len(records), len(diags), StatusReady, docID)
		return err
	})
}

// ListQuestions returns a document's questions in document order.
func (s *Store) ListQuestions(ctx context.Context, docID int64) ([]question.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT number, question_type, question, options, option_count, answer,
			category, difficulty, score, tags, explanation, needs_review
		FROM questions WHERE document_id = ? ORDER BY position
	`), docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []question.Record
	for rows.Next() {
		var (
			r    question.Record
			opts string
		)
		if err := rows.Scan(&r.Number, &r.QuestionType, &r.Question, &opts, &r.OptionCount,
			&r.Answer, &r.Category, &r.Difficulty, &r.Score, &r.Tags, &r.Explanation,
			&r.NeedsReview); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &r.Options); err != nil {
			return nil, fmt.Errorf("decoding options of question %d: %w", r.Number, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListDiagnostics returns a document's diagnostics in the order they were
// reported.
func (s *Store) ListDiagnostics(ctx context.Context, docID int64) ([]question.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT kind, block, number, line, message, detail
		FROM diagnostics WHERE document_id = ? ORDER BY id
	`), docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []question.Diagnostic
	for rows.Next() {
		var (
			d      question.Diagnostic
			kind   string
			detail string
		)
		if err := rows.Scan(&kind, &d.Block, &d.Number, &d.Line, &d.Message, &detail); err != nil {
			return nil, err
		}
		if err := d.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, err
		}
		if detail != "" {
			d.Err = errors.New(detail)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats returns row counts across all documents.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	for _, q := range []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM documents", &st.Documents},
		{"SELECT COUNT(*) FROM questions", &st.Questions},
		{"SELECT COUNT(*) FROM questions WHERE needs_review = " + s.boolLiteral(true), &st.Flagged},
		{"SELECT COUNT(*) FROM diagnostics", &st.Diagnostics},
	} {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	d := &Document{}
	var meta sql.NullString
	err := row.Scan(&d.ID, &d.Path, &d.Filename, &d.Format, &d.ContentHash,
		&d.ParseMethod, &d.Status, &d.RunID, &d.QuestionCount, &d.DiagnosticCount,
		&meta, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of %s: %w", d.Path, err)
		}
	}
	return d, nil
}

func encodeMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) boolLiteral(v bool) string {
	if s.dialect == dialectPostgres {
		return strconv.FormatBool(v)
	}
	if v {
		return "1"
	}
	return "0"
}
