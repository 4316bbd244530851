package store

// Schema is the DDL for the selector store.
const Schema = `
-- One row per (domain, field, selector) strategy. Rows are never deleted;
-- failing strategies sink in the ranking instead.
CREATE TABLE IF NOT EXISTS learned_selectors (
    id              TEXT PRIMARY KEY,
    domain          TEXT NOT NULL,
    field           TEXT NOT NULL,
    selector        TEXT NOT NULL,
    selector_type   TEXT NOT NULL DEFAULT 'css',
    success_count   INTEGER NOT NULL DEFAULT 0,
    failure_count   INTEGER NOT NULL DEFAULT 0,
    success_rate    REAL NOT NULL DEFAULT 0.0,
    priority        INTEGER NOT NULL DEFAULT 0,
    learned_from    TEXT NOT NULL DEFAULT 'css',
    example_value   TEXT NOT NULL DEFAULT '',
    first_seen      INTEGER NOT NULL,
    last_used       INTEGER NOT NULL DEFAULT 0,
    last_success    INTEGER NOT NULL DEFAULT 0,
    UNIQUE (domain, field, selector)
);
CREATE INDEX IF NOT EXISTS idx_selectors_rank
    ON learned_selectors(domain, field, priority DESC, success_rate DESC, last_used DESC);
`
