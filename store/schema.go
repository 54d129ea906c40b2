package store

// schemaSQL is the DDL for the journal tables.
const schemaSQL = `
-- One row per pass over the corpus
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    pass INTEGER NOT NULL DEFAULT 1,
    mode TEXT NOT NULL,
    input TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    total INTEGER DEFAULT 0,
    merged INTEGER DEFAULT 0,
    aborted INTEGER DEFAULT 0,
    converged INTEGER DEFAULT 0
);

-- Outcome of each document within a run
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    path TEXT NOT NULL,
    filename TEXT NOT NULL,
    mode TEXT NOT NULL,
    final_state TEXT NOT NULL,
    trail JSON,
    validation_skipped INTEGER DEFAULT 0,
    entity_similarity REAL,
    relation_similarity REAL,
    error TEXT,
    content_hash TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(run_id, path)
);

-- Extracted entities, shared across documents
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    UNIQUE(name, entity_type)
);

CREATE TABLE IF NOT EXISTS document_entities (
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    PRIMARY KEY (document_id, entity_id)
);

-- Head and tail are kept as text: they may name entities the model never listed
CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    head TEXT NOT NULL,
    predicate TEXT NOT NULL,
    tail TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_relationships_document ON relationships(document_id);
CREATE INDEX IF NOT EXISTS idx_relationships_predicate ON relationships(predicate);
`
