package store

// schemaSQL is the baseline schema, applied as migration 1.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    status           TEXT NOT NULL DEFAULT 'queued',
    file_name        TEXT NOT NULL DEFAULT '',
    error            TEXT NOT NULL DEFAULT '',
    total_files      INTEGER NOT NULL DEFAULT 0,
    processed_files  INTEGER NOT NULL DEFAULT 0,
    entities_found   INTEGER NOT NULL DEFAULT 0,
    findings_created INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS processed_files (
    sha256       TEXT PRIMARY KEY,
    path         TEXT NOT NULL,
    processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scan_items (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id            TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    virtual_path      TEXT NOT NULL,
    source_path       TEXT NOT NULL DEFAULT '',
    mime_type         TEXT NOT NULL DEFAULT '',
    extraction_method TEXT NOT NULL DEFAULT 'none',
    ocr_used          INTEGER NOT NULL DEFAULT 0,
    text_chars        INTEGER NOT NULL DEFAULT 0,
    text_preview      TEXT NOT NULL DEFAULT '',
    entities_found    INTEGER NOT NULL DEFAULT 0,
    warnings          TEXT NOT NULL DEFAULT '[]',
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_scan_items_job ON scan_items(job_id);

CREATE TABLE IF NOT EXISTS findings (
    id                  TEXT PRIMARY KEY,
    job_id              TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    file_path           TEXT NOT NULL,
    entity_type         TEXT NOT NULL,
    entity_text         TEXT,
    score               REAL NOT NULL DEFAULT 0,
    start_offset        INTEGER NOT NULL DEFAULT 0,
    end_offset          INTEGER NOT NULL DEFAULT 0,
    context             TEXT NOT NULL DEFAULT '',
    primary_regex       TEXT NOT NULL DEFAULT '',
    supporting_keywords TEXT NOT NULL DEFAULT '[]',
    created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_findings_job ON findings(job_id);

CREATE TABLE IF NOT EXISTS sits (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sit_versions (
    id             TEXT PRIMARY KEY,
    sit_id         TEXT NOT NULL REFERENCES sits(id) ON DELETE CASCADE,
    version_number INTEGER NOT NULL,
    entity_type    TEXT NOT NULL DEFAULT '',
    confidence     TEXT NOT NULL DEFAULT '',
    source         TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (sit_id, version_number)
);

CREATE TABLE IF NOT EXISTS primary_elements (
    version_id   TEXT PRIMARY KEY REFERENCES sit_versions(id) ON DELETE CASCADE,
    element_type TEXT NOT NULL,
    value        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS supporting_logic (
    version_id TEXT PRIMARY KEY REFERENCES sit_versions(id) ON DELETE CASCADE,
    mode       TEXT NOT NULL DEFAULT 'ANY',
    min_n      INTEGER,
    max_n      INTEGER
);

CREATE TABLE IF NOT EXISTS supporting_groups (
    id         TEXT PRIMARY KEY,
    version_id TEXT NOT NULL REFERENCES sit_versions(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    position   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_groups_version ON supporting_groups(version_id);

CREATE TABLE IF NOT EXISTS supporting_items (
    id              TEXT PRIMARY KEY,
    group_id        TEXT NOT NULL REFERENCES supporting_groups(id) ON DELETE CASCADE,
    item_type       TEXT NOT NULL,
    value           TEXT NOT NULL DEFAULT '',
    keyword_list_id TEXT REFERENCES keyword_lists(id),
    position        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_items_group ON supporting_items(group_id);

CREATE TABLE IF NOT EXISTS keyword_lists (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS keyword_list_items (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    list_id  TEXT NOT NULL REFERENCES keyword_lists(id) ON DELETE CASCADE,
    value    TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_kw_items_list ON keyword_list_items(list_id);

CREATE TABLE IF NOT EXISTS rulepacks (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    version     TEXT NOT NULL DEFAULT '1.0',
    description TEXT NOT NULL DEFAULT '',
    publisher   TEXT NOT NULL DEFAULT '',
    locale      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rulepack_selections (
    rulepack_id    TEXT NOT NULL REFERENCES rulepacks(id) ON DELETE CASCADE,
    sit_version_id TEXT NOT NULL REFERENCES sit_versions(id) ON DELETE CASCADE,
    PRIMARY KEY (rulepack_id, sit_version_id)
);
`
