package queue

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    tenant_id TEXT NOT NULL,
    owner TEXT NOT NULL,
    execution_system TEXT NOT NULL,
    app_id TEXT NOT NULL,
    batch_queue TEXT,
    local_job_id TEXT,
    status TEXT NOT NULL,
    status_check_count INTEGER NOT NULL DEFAULT 0,
    retry_count INTEGER NOT NULL DEFAULT 0,
    archive_flag INTEGER NOT NULL DEFAULT 0,
    archive_system TEXT,
    archive_path TEXT,
    error_message TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_heartbeat TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_tenant ON jobs (status, tenant_id);

CREATE TABLE IF NOT EXISTS logical_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    tenant_id TEXT NOT NULL,
    owner TEXT NOT NULL,
    system_id TEXT NOT NULL,
    path TEXT NOT NULL,
    source_uri TEXT,
    status TEXT NOT NULL,
    overwritten INTEGER NOT NULL DEFAULT 0,
    job_uuid TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_source ON logical_files (tenant_id, source_uri);
CREATE INDEX IF NOT EXISTS idx_files_location ON logical_files (tenant_id, system_id, path);

CREATE TABLE IF NOT EXISTS staging_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    logical_file_id INTEGER NOT NULL REFERENCES logical_files(id) ON DELETE CASCADE,
    status TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON staging_tasks (status);

CREATE TABLE IF NOT EXISTS job_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_uuid TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    created_by TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_job ON job_events (job_uuid);
`
