// Package shelfstore provides the local-first SQLite entity store for the
// reading tracker: durable storage for books, series, user books, reading
// sessions and user preferences, each row carrying the sync metadata that the
// batch reconciler operates on (pending-sync flag, soft-delete tombstone,
// optional server identifier).
//
// All mutations go through scoped write transactions. Committed writes emit
// table-change notifications so that live queries (UI observers) can re-run.
// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite database and serializes all write transactions.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger
	bus    *ChangeBus

	writeMu sync.Mutex // Serialize write transactions to prevent SQLite locking issues

	validate *entityValidator
	nowFn    func() time.Time // overridable in tests
}

// timeLayout is the canonical column format for created_at/updated_at.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Open opens (or creates) the database file at path and initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := OpenDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenDB wraps an existing database handle, enables the required pragmas and
// creates the schema. The caller keeps ownership of db lifecycle only through
// the returned Store.
func OpenDB(db *sql.DB) (*Store, error) {
	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &Store{
		DB:       db,
		logger:   slog.Default(),
		bus:      NewChangeBus(),
		validate: newEntityValidator(),
		nowFn:    time.Now,
	}, nil
}

// SetLogger replaces the default logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Bus exposes the table-change notification bus for live query subscribers.
func (s *Store) Bus() *ChangeBus { return s.bus }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// initializeDatabase enables WAL mode plus foreign keys and creates all
// entity tables.
func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	for _, ddl := range schemaStatements {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create entity table: %w", err)
		}
	}
	return nil
}

// WriteTx runs fn inside a scoped write transaction. On any error or panic
// inside fn no partial state is persisted. After a successful commit, a
// change notification is published for every table listed in touched.
//
// Write transactions are serialized store-wide, which gives
// single-writer-per-record semantics: no two mutations of the same record can
// commit interleaved. Reads are unaffected and may proceed concurrently.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *sql.Tx) error, touched ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Op: "begin", Err: err}
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &TransactionError{Op: "commit", Err: err}
	}
	committed = true

	s.bus.Publish(touched...)
	return nil
}

// now returns the current time truncated to the column resolution, clamped so
// that updated_at never moves backwards for a record that carries prev.
func (s *Store) now(prev time.Time) time.Time {
	t := s.nowFn().UTC().Truncate(time.Millisecond)
	if !t.After(prev) {
		t = prev.Add(time.Millisecond)
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Tolerate RFC3339 values written by other tools.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}
