package store

// schemaSQL returns the DDL for the dialect's base tables. Indexes added
// after the first release live in migrations.go.
func schemaSQL(d dialect) string {
	if d == dialectPostgres {
		return schemaPostgres
	}
	return schemaSQLite
}

const schemaSQLite = `
-- Source documents with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    parse_method TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    run_id TEXT NOT NULL DEFAULT '',
    question_count INTEGER NOT NULL DEFAULT 0,
    diagnostic_count INTEGER NOT NULL DEFAULT 0,
    metadata TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Extracted questions in document order
CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    number INTEGER NOT NULL,
    question_type TEXT NOT NULL,
    question TEXT NOT NULL,
    options TEXT NOT NULL,
    option_count INTEGER NOT NULL,
    answer INTEGER NOT NULL,
    category TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    score INTEGER NOT NULL,
    tags TEXT NOT NULL,
    explanation TEXT NOT NULL,
    needs_review INTEGER NOT NULL DEFAULT 0
);

-- Per-block problems reported during extraction
CREATE TABLE IF NOT EXISTS diagnostics (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    block INTEGER NOT NULL,
    number INTEGER NOT NULL,
    line INTEGER NOT NULL,
    message TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_questions_document ON questions(document_id, position);
CREATE INDEX IF NOT EXISTS idx_diagnostics_document ON diagnostics(document_id);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS documents (
    id BIGSERIAL PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    parse_method TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    run_id TEXT NOT NULL DEFAULT '',
    question_count INTEGER NOT NULL DEFAULT 0,
    diagnostic_count INTEGER NOT NULL DEFAULT 0,
    metadata TEXT,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS questions (
    id BIGSERIAL PRIMARY KEY,
    document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    number INTEGER NOT NULL,
    question_type TEXT NOT NULL,
    question TEXT NOT NULL,
    options TEXT NOT NULL,
    option_count INTEGER NOT NULL,
    answer INTEGER NOT NULL,
    category TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    score INTEGER NOT NULL,
    tags TEXT NOT NULL,
    explanation TEXT NOT NULL,
    needs_review BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS diagnostics (
    id BIGSERIAL PRIMARY KEY,
    document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    block INTEGER NOT NULL,
    number INTEGER NOT NULL,
    line INTEGER NOT NULL,
    message TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_questions_document ON questions(document_id, position);
CREATE INDEX IF NOT EXISTS idx_diagnostics_document ON diagnostics(document_id);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`
