// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const userBookColumns = `id, server_id, book_id, status, rating, current_page,
	is_pending_sync, is_deleted, created_at, updated_at`

const sessionColumns = `id, server_id, book_id, started_at, duration_minutes, pages_read,
	is_pending_sync, is_deleted, created_at, updated_at`

// CreateUserBook inserts the user's relationship to a book. The book is
// referenced by its local identifier and must exist locally.
func (s *Store) CreateUserBook(ctx context.Context, ub *UserBook) error {
	if ub.Status == "" {
		ub.Status = StatusWant
	}
	if err := s.validate.Struct("user_books", ub); err != nil {
		return err
	}
	if ub.ID == "" {
		ub.ID = uuid.New().String()
	}

	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := parentExists(ctx, tx, TableBooks, ub.BookID); err != nil {
			return err
		}

		now := s.now(ub.UpdatedAt)
		ub.CreatedAt = now
		ub.UpdatedAt = now
		ub.IsPendingSync = true
		ub.IsDeleted = false
		ub.ServerID = nil

		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_books (id, server_id, book_id, status, rating, current_page,
				is_pending_sync, is_deleted, created_at, updated_at)
			VALUES (?, NULL, ?, ?, ?, ?, 1, 0, ?, ?)
		`, ub.ID, ub.BookID, ub.Status, ub.Rating, ub.CurrentPage,
			formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to insert user book: %w", err)
		}
		return nil
	}, TableUserBooks)
}

// UpdateUserBook applies mutate inside a scoped write transaction.
func (s *Store) UpdateUserBook(ctx context.Context, id string, mutate func(*UserBook) error) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+userBookColumns+` FROM user_books WHERE id = ?`, id)
		ub, err := scanUserBook(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if ub.IsDeleted {
			return ErrNotFound
		}

		meta := ub.SyncMeta
		bookID := ub.BookID
		if err := mutate(ub); err != nil {
			return err
		}
		ub.SyncMeta = meta
		ub.BookID = bookID // parent reference is immutable

		if err := s.validate.Struct("user_books", ub); err != nil {
			return err
		}

		now := s.now(meta.UpdatedAt)
		_, err = tx.ExecContext(ctx, `
			UPDATE user_books SET status = ?, rating = ?, current_page = ?,
				is_pending_sync = 1, updated_at = ?
			WHERE id = ?
		`, ub.Status, ub.Rating, ub.CurrentPage, formatTime(now), id)
		if err != nil {
			return fmt.Errorf("failed to update user book: %w", err)
		}
		return nil
	}, TableUserBooks)
}

// GetUserBook loads a user book by local id, tombstoned or not.
func (s *Store) GetUserBook(ctx context.Context, id string) (*UserBook, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+userBookColumns+` FROM user_books WHERE id = ?`, id)
	ub, err := scanUserBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ub, err
}

// CreateReadingSession records a timed reading entry against a book.
func (s *Store) CreateReadingSession(ctx context.Context, rs *ReadingSession) error {
	if err := s.validate.Struct("reading_sessions", rs); err != nil {
		return err
	}
	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	if rs.StartedAt.IsZero() {
		rs.StartedAt = s.nowFn().UTC()
	}

	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		if err := parentExists(ctx, tx, TableBooks, rs.BookID); err != nil {
			return err
		}

		now := s.now(rs.UpdatedAt)
		rs.CreatedAt = now
		rs.UpdatedAt = now
		rs.IsPendingSync = true
		rs.IsDeleted = false
		rs.ServerID = nil

		_, err := tx.ExecContext(ctx, `
			INSERT INTO reading_sessions (id, server_id, book_id, started_at,
				duration_minutes, pages_read, is_pending_sync, is_deleted, created_at, updated_at)
			VALUES (?, NULL, ?, ?, ?, ?, 1, 0, ?, ?)
		`, rs.ID, rs.BookID, formatTime(rs.StartedAt), rs.DurationMinutes, rs.PagesRead,
			formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to insert reading session: %w", err)
		}
		return nil
	}, TableReadingSessions)
}

// GetReadingSession loads a session by local id, tombstoned or not.
func (s *Store) GetReadingSession(ctx context.Context, id string) (*ReadingSession, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM reading_sessions WHERE id = ?`, id)
	rs, err := scanReadingSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rs, err
}

// ListSessionsForBook returns live reading sessions for a book, most recent
// first.
func (s *Store) ListSessionsForBook(ctx context.Context, bookID string) ([]*ReadingSession, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM reading_sessions
		 WHERE book_id = ? AND is_deleted = 0 ORDER BY started_at DESC, id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reading sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ReadingSession
	for rows.Next() {
		rs, err := scanReadingSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rs)
	}
	return sessions, rows.Err()
}
