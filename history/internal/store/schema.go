package store

// Schema is the DDL for price history and commerce events.
const Schema = `
-- Write-suppressed time series: a row per real price change, or per
-- staleness period without one. Amounts are decimal strings.
CREATE TABLE IF NOT EXISTS price_history (
    id                    TEXT PRIMARY KEY,
    product_id            TEXT NOT NULL,
    retailer              TEXT NOT NULL,
    url                   TEXT NOT NULL DEFAULT '',
    price                 TEXT NOT NULL,
    original_price        TEXT,
    price_change          TEXT,
    price_change_percent  REAL,
    in_stock              INTEGER NOT NULL DEFAULT 1,
    currency              TEXT NOT NULL DEFAULT '',
    price_event           TEXT NOT NULL DEFAULT '',
    extracted_by          TEXT NOT NULL DEFAULT '',
    recorded_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_series
    ON price_history(product_id, retailer, recorded_at);

-- Reference data. position keeps configuration order, which breaks ties
-- between overlapping events.
CREATE TABLE IF NOT EXISTS commerce_events (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL UNIQUE,
    type      TEXT NOT NULL DEFAULT 'custom',
    date      TEXT NOT NULL,
    year      INTEGER NOT NULL,
    active    INTEGER NOT NULL DEFAULT 1,
    position  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_position ON commerce_events(active, position);
`
