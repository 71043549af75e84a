package store

const schema = `
CREATE TABLE IF NOT EXISTS raw_items (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    source_kind      TEXT NOT NULL,
    source_ref       TEXT NOT NULL DEFAULT '',
    source_url       TEXT NOT NULL DEFAULT '',
    retrieved_at     DATETIME NOT NULL,
    content_snapshot TEXT NOT NULL DEFAULT '',
    raw_payload      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_raw_items_retrieved_at ON raw_items(retrieved_at);
CREATE INDEX IF NOT EXISTS idx_raw_items_source_kind ON raw_items(source_kind);

CREATE TABLE IF NOT EXISTS clusters (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    title             TEXT NOT NULL,
    kind              TEXT NOT NULL DEFAULT 'news',
    first_seen_at     DATETIME NOT NULL,
    last_seen_at      DATETIME NOT NULL,
    item_count        INTEGER NOT NULL DEFAULT 0,
    score             REAL NOT NULL DEFAULT 0,
    meta              TEXT NOT NULL DEFAULT '{}',
    primary_link      TEXT NOT NULL DEFAULT '',
    evidence_links    TEXT NOT NULL DEFAULT '[]',
    link_select_debug TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_clusters_last_seen ON clusters(last_seen_at);
CREATE INDEX IF NOT EXISTS idx_clusters_score ON clusters(score);

CREATE TABLE IF NOT EXISTS items (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    external_id  TEXT NOT NULL,
    title        TEXT NOT NULL,
    url          TEXT NOT NULL DEFAULT '',
    domain       TEXT NOT NULL DEFAULT '',
    summary      TEXT NOT NULL DEFAULT '',
    published_at DATETIME,
    fetched_at   DATETIME NOT NULL,
    raw_item_id  INTEGER,
    cluster_id   INTEGER REFERENCES clusters(id),
    UNIQUE(source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_items_cluster ON items(cluster_id);
CREATE INDEX IF NOT EXISTS idx_items_fetched_at ON items(fetched_at);
CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);

CREATE TABLE IF NOT EXISTS repos (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name      TEXT NOT NULL UNIQUE,
    url            TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    topics         TEXT NOT NULL DEFAULT '[]',
    language       TEXT NOT NULL DEFAULT '',
    stars          INTEGER NOT NULL DEFAULT 0,
    forks          INTEGER NOT NULL DEFAULT 0,
    open_issues    INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL,
    last_pushed_at DATETIME
);

CREATE TABLE IF NOT EXISTS repo_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_id     INTEGER NOT NULL REFERENCES repos(id),
    captured_at DATETIME NOT NULL,
    stars       INTEGER NOT NULL,
    forks       INTEGER NOT NULL,
    open_issues INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repo_snapshots_repo ON repo_snapshots(repo_id, captured_at);

CREATE TABLE IF NOT EXISTS user_feedback (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_kind   TEXT NOT NULL,
    topic_ref_id INTEGER NOT NULL,
    label        TEXT NOT NULL,
    reason       TEXT NOT NULL DEFAULT '',
    user_id      TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_feedback_topic ON user_feedback(topic_kind, topic_ref_id);
CREATE INDEX IF NOT EXISTS idx_user_feedback_created_at ON user_feedback(created_at);

CREATE TABLE IF NOT EXISTS briefs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    kind       TEXT NOT NULL,
    ref_id     INTEGER NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_briefs_kind_created ON briefs(kind, created_at);

CREATE TABLE IF NOT EXISTS job_runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    job         TEXT NOT NULL,
    items_in    INTEGER NOT NULL DEFAULT 0,
    items_out   INTEGER NOT NULL DEFAULT 0,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job, started_at);
`
