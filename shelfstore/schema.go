// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

// Entity table names.
const (
	TableSeries          = "series"
	TableBooks           = "books"
	TableUserBooks       = "user_books"
	TableReadingSessions = "reading_sessions"
	TableUserPreferences = "user_preferences"
)

// syncTables lists all synchronized tables in foreign-key dependency order,
// parents first. The reconciler relies on this order when building batches:
// creates/updates go out parent-before-child, deletions child-before-parent.
var syncTables = []string{
	TableSeries,
	TableBooks,
	TableUserBooks,
	TableReadingSessions,
	TableUserPreferences,
}

// SyncTables returns the synchronized table names in dependency order.
func SyncTables() []string {
	out := make([]string, len(syncTables))
	copy(out, syncTables)
	return out
}

// Every entity table carries the same sync-control columns:
//
//	id              TEXT    client-assigned UUID, stable, never reused
//	server_id       INTEGER null until the first acknowledged sync, then immutable
//	is_pending_sync INTEGER local state diverged from last known server state
//	is_deleted      INTEGER soft-delete tombstone, cleared only by purge
//	created_at      TEXT
//	updated_at      TEXT    monotonically non-decreasing per record
//
// Children reference parents by the parent's local id so relationships are
// valid before any sync has happened.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS series (
		id              TEXT PRIMARY KEY,
		server_id       INTEGER,
		title           TEXT NOT NULL,
		author          TEXT NOT NULL DEFAULT '',
		total_volumes   INTEGER NOT NULL DEFAULT 0,
		completed       INTEGER NOT NULL DEFAULT 0,
		is_pending_sync INTEGER NOT NULL DEFAULT 1,
		is_deleted      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS books (
		id              TEXT PRIMARY KEY,
		server_id       INTEGER,
		title           TEXT NOT NULL,
		author          TEXT NOT NULL DEFAULT '',
		isbn            TEXT NOT NULL DEFAULT '',
		catalog_id      TEXT NOT NULL DEFAULT '',
		cover_url       TEXT NOT NULL DEFAULT '',
		genres          TEXT NOT NULL DEFAULT '[]',
		page_count      INTEGER NOT NULL DEFAULT 0,
		series_id       TEXT REFERENCES series(id),
		volume_number   INTEGER NOT NULL DEFAULT 0,
		is_pending_sync INTEGER NOT NULL DEFAULT 1,
		is_deleted      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS user_books (
		id              TEXT PRIMARY KEY,
		server_id       INTEGER,
		book_id         TEXT NOT NULL REFERENCES books(id),
		status          TEXT NOT NULL DEFAULT 'want',
		rating          INTEGER NOT NULL DEFAULT 0,
		current_page    INTEGER NOT NULL DEFAULT 0,
		is_pending_sync INTEGER NOT NULL DEFAULT 1,
		is_deleted      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS reading_sessions (
		id               TEXT PRIMARY KEY,
		server_id        INTEGER,
		book_id          TEXT NOT NULL REFERENCES books(id),
		started_at       TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		pages_read       INTEGER NOT NULL DEFAULT 0,
		is_pending_sync  INTEGER NOT NULL DEFAULT 1,
		is_deleted       INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS user_preferences (
		id              TEXT PRIMARY KEY,
		server_id       INTEGER,
		category        TEXT NOT NULL,
		pref_type       TEXT NOT NULL,
		value           TEXT NOT NULL,
		normalized      TEXT NOT NULL,
		is_pending_sync INTEGER NOT NULL DEFAULT 1,
		is_deleted      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_books_pending ON books(is_pending_sync)`,
	`CREATE INDEX IF NOT EXISTS idx_series_pending ON series(is_pending_sync)`,
	`CREATE INDEX IF NOT EXISTS idx_user_books_pending ON user_books(is_pending_sync)`,
	`CREATE INDEX IF NOT EXISTS idx_reading_sessions_pending ON reading_sessions(is_pending_sync)`,
	`CREATE INDEX IF NOT EXISTS idx_user_preferences_pending ON user_preferences(is_pending_sync)`,
	`CREATE INDEX IF NOT EXISTS idx_user_preferences_normalized ON user_preferences(category, pref_type, normalized)`,
}
