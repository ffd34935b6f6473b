package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	hyrecsv "github.com/ebinesh25/gen-hyre-csv"
	"github.com/ebinesh25/gen-hyre-csv/question"
	"github.com/ebinesh25/gen-hyre-csv/store"
	"github.com/ebinesh25/gen-hyre-csv/table"
)

const (
	headerDiagnostics = "X-Diagnostics"
	headerFlagged     = "X-Flagged"
	headerRunID       = "X-Run-ID"

	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type handler struct {
	conv hyrecsv.Converter
	cfg  hyrecsv.Config
}

func newHandler(c hyrecsv.Converter, cfg hyrecsv.Config) *handler {
	return &handler{conv: c, cfg: cfg}
}

// tableRequest is the output selection shared by the download endpoints.
type tableRequest struct {
	format string
	writer table.Writer
}

func (h *handler) parseTableRequest(r *http.Request) (tableRequest, error) {
	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))
	if format == "" {
		format = strings.ToLower(h.cfg.Format)
	}
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		return tableRequest{}, errors.New("format must be csv or xlsx")
	}

	schema := h.cfg.TableSchema()
	if name := q.Get("schema"); name != "" {
		var err error
		if schema, err = table.ParseSchema(name); err != nil {
			return tableRequest{}, err
		}
	}
	return tableRequest{
		format: format,
		writer: table.Writer{Schema: schema, BreakToken: h.cfg.BreakToken},
	}, nil
}

// POST /api/parse-doc
// Accepts a multipart "file" upload and replies with the question table
// as an attachment.
func (h *handler) handleParseDoc(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	out, err := h.parseTableRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart form with 'file'")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// Sanitise filename to prevent path traversal.
	safeName := filepath.Base(header.Filename)
	if safeName == "." || safeName == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	tmpDir := filepath.Join(os.TempDir(), "hyrecsv-"+uuid.NewString())
	if err := os.MkdirAll(tmpDir, 0o700); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp dir", "error", err)
		return
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, safeName)
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return
	}
	dst.Close()

	opts := []hyrecsv.ConvertOption{
		hyrecsv.WithMetadata(map[string]string{
			"source":     "upload",
			"filename":   safeName,
			"request_id": middleware.GetReqID(r.Context()),
		}),
		hyrecsv.WithSchema(out.writer.Schema),
	}
	if c := r.FormValue("category"); c != "" {
		opts = append(opts, hyrecsv.WithCategory(c))
	}

	res, err := h.conv.ConvertFile(ctx, tmpPath, opts...)
	if err != nil {
		h.writeConvertError(w, safeName, res, err)
		return
	}

	var buf bytes.Buffer
	if out.format == "xlsx" {
		err = out.writer.WriteXLSX(&buf, res.Records)
	} else {
		err = out.writer.WriteCSV(&buf, res.Records)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write table")
		slog.Error("writing table", "file", safeName, "error", err)
		return
	}

	writeTable(w, hyrecsv.OutputName(safeName, out.format), out.format,
		res.RunID, len(res.Diagnostics), len(res.Flagged()), buf.Bytes())
}

// POST /api/parse-text
func (h *handler) handleParseText(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		Text     string `json:"text"`
		Category string `json:"category,omitempty"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var opts []hyrecsv.ConvertOption
	if req.Category != "" {
		opts = append(opts, hyrecsv.WithCategory(req.Category))
	}
	res, err := h.conv.ConvertText(ctx, req.Text, opts...)
	if err != nil {
		h.writeConvertError(w, "text", res, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      res.RunID,
		"records":     res.Records,
		"diagnostics": diagnosticsOrEmpty(res.Diagnostics),
		"flagged":     len(res.Flagged()),
	})
}

// GET /api/documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.conv.ListDocuments(r.Context())
	if errors.Is(err, hyrecsv.ErrNoStore) {
		writeError(w, http.StatusNotFound, "persistence is disabled")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
	})
}

// GET /api/documents/{id}/questions
// Replies with a stored document's questions as a table download.
func (h *handler) handleDocumentQuestions(w http.ResponseWriter, r *http.Request) {
	s := h.conv.Store()
	if s == nil {
		writeError(w, http.StatusNotFound, "persistence is disabled")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	out, err := h.parseTableRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := s.GetDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, hyrecsv.ErrDocumentNotFound.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load document")
		slog.Error("get document error", "document_id", id, "error", err)
		return
	}
	records, err := s.ListQuestions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load questions")
		slog.Error("list questions error", "document_id", id, "error", err)
		return
	}

	var buf bytes.Buffer
	if out.format == "xlsx" {
		err = out.writer.WriteXLSX(&buf, records)
	} else {
		err = out.writer.WriteCSV(&buf, records)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write table")
		slog.Error("writing table", "document_id", id, "error", err)
		return
	}

	flagged := 0
	for _, rec := range records {
		if rec.NeedsReview {
			flagged++
		}
	}
	writeTable(w, hyrecsv.OutputName(doc.Filename, out.format), out.format,
		doc.RunID, doc.DiagnosticCount, flagged, buf.Bytes())
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// writeConvertError maps conversion errors onto HTTP statuses.
func (h *handler) writeConvertError(w http.ResponseWriter, name string, res *hyrecsv.Result, err error) {
	switch {
	case errors.Is(err, hyrecsv.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "unsupported file type: "+filepath.Ext(name))
	case errors.Is(err, hyrecsv.ErrNoQuestions):
		body := map[string]any{"error": "no questions found in " + name}
		if res != nil {
			body["diagnostics"] = diagnosticsOrEmpty(res.Diagnostics)
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, hyrecsv.ErrParsingFailed):
		writeError(w, http.StatusUnprocessableEntity, "could not read "+name)
		slog.Warn("parse error", "file", name, "error", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "conversion timed out")
	default:
		writeError(w, http.StatusInternalServerError, "conversion failed")
		slog.Error("convert error", "file", name, "error", err)
	}
}

func writeTable(w http.ResponseWriter, filename, format, runID string, diagnostics, flagged int, body []byte) {
	ct := contentTypeCSV
	if format == "xlsx" {
		ct = contentTypeXLSX
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set(headerDiagnostics, strconv.Itoa(diagnostics))
	w.Header().Set(headerFlagged, strconv.Itoa(flagged))
	w.Header().Set(headerRunID, runID)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func diagnosticsOrEmpty(d []question.Diagnostic) []question.Diagnostic {
	if d == nil {
		return []question.Diagnostic{}
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
