package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the transcript tables. Times are stored as Unix nanoseconds
// so both drivers read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    model TEXT,
    mode TEXT NOT NULL,
    path TEXT,
    messages INTEGER NOT NULL DEFAULT 0,
    content TEXT NOT NULL,
    chunks INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    completed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_session_id ON transcripts(session_id);
CREATE INDEX IF NOT EXISTS idx_transcripts_completed_at ON transcripts(completed_at);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
