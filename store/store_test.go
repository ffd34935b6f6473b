//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ebinesh25/gen-hyre-csv/question"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDoc(path string) Document {
	return Document{
		Path:        path,
		Filename:    "Synonyms Test -DB.docx",
		Format:      "docx",
		ContentHash: "abc123",
		ParseMethod: "native",
		Status:      StatusPending,
		RunID:       "run-1",
		Metadata:    map[string]string{"paragraphs": "12"},
	}
}

func sampleRecords() []question.Record {
	return []question.Record{
		{
			QuestionType: question.TypeObjective, Number: 1, Question: "What is 2+2?",
			Options: []string{"3", "4"}, OptionCount: 2, Answer: 2,
			Category: "Aptitude", Difficulty: "medium", Score: 5, Tags: "Aptitude,Numbers",
			Explanation: `Add.\nDone.`,
		},
		{
			QuestionType: question.TypeObjective, Number: 2, Question: "Pick one",
			Options: []string{"a", "b", "c"}, OptionCount: 3,
			Category: "Aptitude", Difficulty: "medium", Score: 5, Tags: "Aptitude,Numbers",
			NeedsReview: true,
		},
	}
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
	if s.Driver() != "sqlite" {
		t.Errorf("Driver() = %q, want sqlite", s.Driver())
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != migrations[len(migrations)-1].version {
		t.Errorf("schema version = %d, want %d", v, migrations[len(migrations)-1].version)
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), "sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.UpsertDocument(context.Background(), sampleDoc("/m.docx")); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in   string
		want dialect
	}{
		{"", dialectSQLite},
		{"sqlite3", dialectSQLite},
		{"SQLite", dialectSQLite},
		{"pgx", dialectPostgres},
		{"postgresql", dialectPostgres},
		{"pg", dialectPostgres},
	}
	for _, tt := range tests {
		got, err := parseDriver(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseDriver(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := parseDriver("mysql"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("parseDriver(mysql) err = %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: dialectPostgres}
	got := pg.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?")
	if want := "UPDATE t SET a = $1, b = $2 WHERE id = $3"; got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	lite := &Store{dialect: dialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func TestUpsertAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertDocument(ctx, sampleDoc("/tmp/q.docx"))
	if err != nil {
		t.Fatalf("upserting document: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero document id")
	}

	got, err := s.GetDocumentByPath(ctx, "/tmp/q.docx")
	if err != nil {
		t.Fatalf("getting document by path: %v", err)
	}
	if got.ID != id || got.ContentHash != "abc123" || got.RunID != "run-1" {
		t.Errorf("document = %+v", got)
	}
	if got.Metadata["paragraphs"] != "12" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	byID, err := s.GetDocument(ctx, id)
	if err != nil || byID.Path != "/tmp/q.docx" {
		t.Errorf("GetDocument = %+v, %v", byID, err)
	}
}

func TestUpsertDocumentUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("/tmp/q.docx")
	id1, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	doc.ContentHash = "def456"
	doc.Metadata = nil
	id2, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("upsert changed id: %d -> %d", id1, id2)
	}
	got, _ := s.GetDocument(ctx, id1)
	if got.ContentHash != "def456" || got.Metadata != nil {
		t.Errorf("document = %+v", got)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetDocumentByPath(context.Background(), "/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListDocumentsAndStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.UpsertDocument(ctx, sampleDoc("/a.docx"))
	if _, err := s.UpsertDocument(ctx, sampleDoc("/b.docx")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateDocumentStatus(ctx, a, StatusError); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	for _, d := range docs {
		if d.ID == a && d.Status != StatusError {
			t.Errorf("status = %q, want error", d.Status)
		}
	}
}

// ---------------------------------------------------------------------------
// Questions & diagnostics
// ---------------------------------------------------------------------------

func TestReplaceQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.UpsertDocument(ctx, sampleDoc("/q.docx"))

	recs := sampleRecords()
	diags := []question.Diagnostic{
		{Kind: question.KindAmbiguousAnswer, Block: 1, Number: 2, Line: 7, Message: "no answer"},
		{Kind: question.KindImageUploadFailure, Block: 0, Number: 1, Line: 1, Message: "image removed", Err: errors.New("boom")},
	}
	if err := s.ReplaceQuestions(ctx, id, recs, diags); err != nil {
		t.Fatalf("ReplaceQuestions: %v", err)
	}

	got, err := s.ListQuestions(ctx, id)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if !reflect.DeepEqual(got, recs) {
		t.Errorf("questions round trip\n got: %+v\nwant: %+v", got, recs)
	}

	gotDiags, err := s.ListDiagnostics(ctx, id)
	if err != nil {
		t.Fatalf("ListDiagnostics: %v", err)
	}
	if len(gotDiags) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(gotDiags))
	}
	if !errors.Is(gotDiags[0], question.ErrAmbiguousAnswer) || gotDiags[0].Line != 7 {
		t.Errorf("diagnostic 0 = %+v", gotDiags[0])
	}
	if gotDiags[1].Err == nil || gotDiags[1].Err.Error() != "boom" {
		t.Errorf("diagnostic 1 detail = %v", gotDiags[1].Err)
	}

	doc, _ := s.GetDocument(ctx, id)
	if doc.Status != StatusReady || doc.QuestionCount != 2 || doc.DiagnosticCount != 2 {
		t.Errorf("document = %+v", doc)
	}
}

func TestReplaceQuestionsOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.UpsertDocument(ctx, sampleDoc("/q.docx"))

	if err := s.ReplaceQuestions(ctx, id, sampleRecords(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceQuestions(ctx, id, sampleRecords()[:1], nil); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ListQuestions(ctx, id)
	if len(got) != 1 {
		t.Errorf("got %d questions after replace, want 1", len(got))
	}
}

func TestReplaceQuestionsCancelled(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.UpsertDocument(context.Background(), sampleDoc("/q.docx"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.ReplaceQuestions(ctx, id, sampleRecords(), nil); err == nil {
		t.Fatal("expected error with cancelled context")
	}
	got, _ := s.ListQuestions(context.Background(), id)
	if len(got) != 0 {
		t.Errorf("cancelled replace left %d questions", len(got))
	}
}

func TestDeleteDocumentAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, _ := s.UpsertDocument(ctx, sampleDoc("/a.docx"))
	b, _ := s.UpsertDocument(ctx, sampleDoc("/b.docx"))
	diag := []question.Diagnostic{{Kind: question.KindMalformedBlock, Message: "one option"}}
	if err := s.ReplaceQuestions(ctx, a, sampleRecords(), diag); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceQuestions(ctx, b, sampleRecords()[:1], nil); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if want := (Stats{Documents: 2, Questions: 3, Flagged: 1, Diagnostics: 1}); *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}

	if err := s.DeleteDocument(ctx, a); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	st, _ = s.Stats(ctx)
	if want := (Stats{Documents: 1, Questions: 1}); *st != want {
		t.Errorf("stats after delete = %+v, want %+v", *st, want)
	}
}
