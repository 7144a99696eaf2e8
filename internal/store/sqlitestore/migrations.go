package sqlitestore

const schema = `
CREATE TABLE IF NOT EXISTS records (
    key TEXT PRIMARY KEY,
    parent TEXT NOT NULL,
    value BLOB NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_parent ON records(parent);
`
