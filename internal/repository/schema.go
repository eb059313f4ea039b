package repository

// Booleans are stored as INTEGER 0/1 and timestamps as unix seconds so the
// row shape is identical across both dialects.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		submitter_id INTEGER NOT NULL,
		source_message_id INTEGER NOT NULL,
		thread_id INTEGER,
		payload_kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		summary_mode INTEGER NOT NULL DEFAULT 0,
		ai_summary TEXT,
		correction_history TEXT NOT NULL DEFAULT '[]',
		summary_message_id INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	`CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER NOT NULL REFERENCES jobs(id),
		name TEXT NOT NULL,
		name_original TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		currency TEXT NOT NULL,
		suggested_category TEXT NOT NULL DEFAULT '',
		possible_categories TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		confirmed_category TEXT,
		waiting_input INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_job ON items(job_id)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(group_id, name)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL,
		submitter_id BIGINT NOT NULL,
		source_message_id INTEGER NOT NULL,
		thread_id INTEGER,
		payload_kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		summary_mode INTEGER NOT NULL DEFAULT 0,
		ai_summary TEXT,
		correction_history TEXT NOT NULL DEFAULT '[]',
		summary_message_id INTEGER,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	`CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		job_id BIGINT NOT NULL REFERENCES jobs(id),
		name TEXT NOT NULL,
		name_original TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		currency TEXT NOT NULL,
		suggested_category TEXT NOT NULL DEFAULT '',
		possible_categories TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		confirmed_category TEXT,
		waiting_input INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_job ON items(job_id)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(group_id, name)
	)`,
}
