package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	hyrecsv "github.com/ebinesh25/gen-hyre-csv"
	"github.com/ebinesh25/gen-hyre-csv/table"
	"github.com/xuri/excelize/v2"
)

const sampleDoc = "1. What is 2+2?\nA. 3\nB. 4\n**Answer: B.**\n**Solution:** Basic addition.\n\n" +
	"2. Pick the odd one\nA. 2\nB. 4\nC. 5\n"

func newTestServer(t *testing.T, mutate func(*hyrecsv.Config)) http.Handler {
	t.Helper()
	cfg := hyrecsv.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	conv, err := hyrecsv.New(cfg)
	if err != nil {
		t.Fatalf("hyrecsv.New: %v", err)
	}
	t.Cleanup(func() { conv.Close() })
	return newRouter(newHandler(conv, cfg), cfg)
}

func uploadRequest(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return out
}

// ---------------------------------------------------------------------------
// POST /api/parse-doc
// ---------------------------------------------------------------------------

func TestParseDocCSV(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/api/parse-doc", "Synonyms Test -DB.md", sampleDoc))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypeCSV {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="Synonyms Test -DB_questions.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	// The second block has no answer.
	if got := rec.Header().Get(headerDiagnostics); got != "1" {
		t.Errorf("%s = %q, want 1", headerDiagnostics, got)
	}
	if got := rec.Header().Get(headerFlagged); got != "1" {
		t.Errorf("%s = %q, want 1", headerFlagged, got)
	}
	if rec.Header().Get(headerRunID) == "" {
		t.Error("missing run id header")
	}

	rows, err := table.ReadCSV(rec.Body)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1][1] != "What is 2+2?" || rows[1][7] != "2" {
		t.Errorf("row 1 = %q", rows[1])
	}
	if rows[2][7] != "" {
		t.Errorf("unresolved answer cell = %q", rows[2][7])
	}
}

func TestParseDocVariableXLSX(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, uploadRequest(t, "/api/parse-doc?format=xlsx&schema=variable", "quiz.txt", sampleDoc))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypeXLSX {
		t.Errorf("Content-Type = %q", ct)
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(table.SheetName)
	if err != nil {
		t.Fatal(err)
	}
	// Three option columns: the widest block has three options.
	if len(rows) != 3 || rows[0][5] != "Options3" {
		t.Errorf("rows = %q", rows)
	}
}

func TestParseDocFlagsTruncatedOptions(t *testing.T) {
	const wide = "1. Pick the prime?\nA. 4\nB. 6\nC. 8\nD. 9\nE. 11\nAnswer: E.\n"

	tests := []struct {
		target      string
		wantFlagged string
		wantAnswer  string
	}{
		{"/api/parse-doc", "1", ""},
		{"/api/parse-doc?schema=variable", "0", "5"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			srv := newTestServer(t, nil)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, uploadRequest(t, tt.target, "wide.md", wide))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get(headerFlagged); got != tt.wantFlagged {
				t.Errorf("%s = %q, want %q", headerFlagged, got, tt.wantFlagged)
			}
			rows, err := table.ReadCSV(rec.Body)
			if err != nil {
				t.Fatal(err)
			}
			answerCol := -1
			for i, h := range rows[0] {
				if h == "Answer" {
					answerCol = i
				}
			}
			if answerCol < 0 || rows[1][answerCol] != tt.wantAnswer {
				t.Errorf("header %q, row %q", rows[0], rows[1])
			}
		})
	}
}

func TestParseDocCategory(t *testing.T) {
	srv := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("category", "Antonyms")
	fw, _ := mw.CreateFormFile("file", "quiz.md")
	fw.Write([]byte(sampleDoc))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/parse-doc", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rows, _ := table.ReadCSV(rec.Body)
	if rows[1][8] != "Antonyms" || rows[1][11] != "Antonyms" {
		t.Errorf("category/tags = %q/%q", rows[1][8], rows[1][11])
	}
}

func TestParseDocErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name     string
		req      *http.Request
		want     int
		contains string
	}{
		{
			name:     "unsupported extension",
			req:      uploadRequest(t, "/api/parse-doc", "quiz.rtf", sampleDoc),
			want:     http.StatusBadRequest,
			contains: "unsupported file type",
		},
		{
			name:     "no questions",
			req:      uploadRequest(t, "/api/parse-doc", "notes.md", "Just some notes.\n"),
			want:     http.StatusBadRequest,
			contains: "no questions found",
		},
		{
			name:     "unreadable document",
			req:      uploadRequest(t, "/api/parse-doc", "broken.docx", "not a zip"),
			want:     http.StatusUnprocessableEntity,
			contains: "could not read",
		},
		{
			name:     "bad format",
			req:      uploadRequest(t, "/api/parse-doc?format=ods", "quiz.md", sampleDoc),
			want:     http.StatusBadRequest,
			contains: "format",
		},
		{
			name:     "bad schema",
			req:      uploadRequest(t, "/api/parse-doc?schema=wide", "quiz.md", sampleDoc),
			want:     http.StatusBadRequest,
			contains: "schema",
		},
		{
			name:     "not multipart",
			req:      httptest.NewRequest(http.MethodPost, "/api/parse-doc", strings.NewReader("{}")),
			want:     http.StatusBadRequest,
			contains: "multipart",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, tt.req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body %q does not mention %q", rec.Body.String(), tt.contains)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// POST /api/parse-text
// ---------------------------------------------------------------------------

func TestParseText(t *testing.T) {
	srv := newTestServer(t, nil)
	payload, _ := json.Marshal(map[string]string{"text": sampleDoc})
	req := httptest.NewRequest(http.MethodPost, "/api/parse-text", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	out := decodeJSON(t, rec)
	records, _ := out["records"].([]any)
	if len(records) != 2 {
		t.Fatalf("records = %v", out["records"])
	}
	first := records[0].(map[string]any)
	if first["question"] != "What is 2+2?" || first["answer"] != float64(2) {
		t.Errorf("first record = %v", first)
	}
	diags, _ := out["diagnostics"].([]any)
	if len(diags) != 1 || diags[0].(map[string]any)["kind"] != "AmbiguousAnswerNotation" {
		t.Errorf("diagnostics = %v", out["diagnostics"])
	}
}

func TestParseTextErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	for name, body := range map[string]string{
		"invalid json": "{",
		"empty text":   `{"text": "  "}`,
		"no questions": `{"text": "nothing numbered"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/parse-text", strings.NewReader(body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Health, auth, CORS, documents
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || decodeJSON(t, rec)["status"] != "ok" {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, func(c *hyrecsv.Config) { c.Server.APIKey = "secret" })
	payload := `{"text": "1. Q?\nA. x\nB. y\nAnswer: A"}`

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{"health skips auth", http.MethodGet, "/health", "", http.StatusOK},
		{"missing key", http.MethodPost, "/api/parse-text", "", http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "/api/parse-text", "Bearer nope", http.StatusUnauthorized},
		{"valid key", http.MethodPost, "/api/parse-text", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(payload))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, func(c *hyrecsv.Config) {
		c.Server.AllowedOrigins = []string{"https://app.example.com"}
		c.Server.APIKey = "secret"
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/parse-doc", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if rec.Code == http.StatusUnauthorized {
		t.Error("preflight must not require auth")
	}
}

func TestDocumentsWithoutStore(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/api/documents", "/api/documents/1/questions"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}
