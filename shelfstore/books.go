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

const bookColumns = `id, server_id, title, author, isbn, catalog_id, cover_url,
	genres, page_count, series_id, volume_number,
	is_pending_sync, is_deleted, created_at, updated_at`

// CreateBook inserts a new locally-owned book. A local identifier is
// assigned when missing, the record starts pending sync with no server id.
// Referencing a series that does not exist locally is a ValidationError.
func (s *Store) CreateBook(ctx context.Context, b *Book) error {
	if err := s.validate.Struct("books", b); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		if b.SeriesID != nil {
			if err := parentExists(ctx, tx, TableSeries, *b.SeriesID); err != nil {
				return err
			}
		}

		now := s.now(b.UpdatedAt)
		b.CreatedAt = now
		b.UpdatedAt = now
		b.IsPendingSync = true
		b.IsDeleted = false
		b.ServerID = nil

		genres, err := marshalGenres(b.Genres)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO books (id, server_id, title, author, isbn, catalog_id, cover_url,
				genres, page_count, series_id, volume_number,
				is_pending_sync, is_deleted, created_at, updated_at)
			VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)
		`, b.ID, b.Title, b.Author, b.ISBN, b.CatalogID, b.CoverURL,
			genres, b.PageCount, nullableString(b.SeriesID), b.VolumeNumber,
			formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to insert book: %w", err)
		}
		return nil
	}, TableBooks)
}

// UpdateBook applies mutate to the book inside a scoped write transaction.
// If mutate returns an error, nothing is persisted. Sync-control fields are
// owned by the store: whatever mutate does to them is discarded, the record
// simply becomes pending with a bumped updated_at.
func (s *Store) UpdateBook(ctx context.Context, id string, mutate func(*Book) error) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		b, err := getBookInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.IsDeleted {
			return ErrNotFound
		}

		meta := b.SyncMeta
		if err := mutate(b); err != nil {
			return err
		}
		b.SyncMeta = meta

		if err := s.validate.Struct("books", b); err != nil {
			return err
		}
		if b.SeriesID != nil {
			if err := parentExists(ctx, tx, TableSeries, *b.SeriesID); err != nil {
				return err
			}
		}

		genres, err := marshalGenres(b.Genres)
		if err != nil {
			return err
		}
		now := s.now(meta.UpdatedAt)
		_, err = tx.ExecContext(ctx, `
			UPDATE books SET title = ?, author = ?, isbn = ?, catalog_id = ?,
				cover_url = ?, genres = ?, page_count = ?, series_id = ?,
				volume_number = ?, is_pending_sync = 1, updated_at = ?
			WHERE id = ?
		`, b.Title, b.Author, b.ISBN, b.CatalogID, b.CoverURL, genres,
			b.PageCount, nullableString(b.SeriesID), b.VolumeNumber,
			formatTime(now), id)
		if err != nil {
			return fmt.Errorf("failed to update book: %w", err)
		}
		return nil
	}, TableBooks)
}

// GetBook loads a book by local id, tombstoned or not.
func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// BookByISBN finds a live book by ISBN. Used by the catalog importer for
// deduplication.
func (s *Store) BookByISBN(ctx context.Context, isbn string) (*Book, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE isbn = ? AND is_deleted = 0`, isbn)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListBooks returns all live (non-tombstoned) books ordered by title. The
// result is a plain snapshot; pair it with a bus subscription on the books
// table for a live query.
func (s *Store) ListBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE is_deleted = 0 ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// ListBooksInSeries returns live books belonging to the series, referenced
// by the series' local identifier.
func (s *Store) ListBooksInSeries(ctx context.Context, seriesID string) ([]*Book, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE series_id = ? AND is_deleted = 0 ORDER BY volume_number, title`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to query books in series: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// parentExists verifies a foreign-key target is present and not tombstoned.
func parentExists(ctx context.Context, tx *sql.Tx, table, id string) error {
	var deleted int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT is_deleted FROM %q WHERE id = ?`, table), id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return &ValidationError{Entity: table, Field: "id", Reason: "referenced parent does not exist"}
	}
	if err != nil {
		return fmt.Errorf("failed to check parent %s.%s: %w", table, id, err)
	}
	if deleted != 0 {
		return &ValidationError{Entity: table, Field: "id", Reason: "referenced parent is deleted"}
	}
	return nil
}

func getBookInTx(ctx context.Context, tx *sql.Tx, id string) (*Book, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}
