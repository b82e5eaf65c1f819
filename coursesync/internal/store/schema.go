package store

// Schema contains the complete DDL for the coursesync tables.
const Schema = `
-- Sheets: course spreadsheets registered for processing
CREATE TABLE IF NOT EXISTS sheets (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    spreadsheet_id TEXT NOT NULL,
    sheet_name     TEXT NOT NULL DEFAULT '',
    course_name    TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sheets_target ON sheets(spreadsheet_id, sheet_name);

-- Runs: one row per processing run, the report kept as JSON
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    sheet_id    TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'running',
    total       INTEGER NOT NULL DEFAULT 0,
    processed   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    report      TEXT,
    error       TEXT,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER,
    FOREIGN KEY (sheet_id) REFERENCES sheets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_runs_sheet ON runs(sheet_id, started_at DESC);
`
