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

const seriesColumns = `id, server_id, title, author, total_volumes, completed,
	is_pending_sync, is_deleted, created_at, updated_at`

// CreateSeries inserts a new locally-owned series.
func (s *Store) CreateSeries(ctx context.Context, se *Series) error {
	if err := s.validate.Struct("series", se); err != nil {
		return err
	}
	if se.ID == "" {
		se.ID = uuid.New().String()
	}

	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		now := s.now(se.UpdatedAt)
		se.CreatedAt = now
		se.UpdatedAt = now
		se.IsPendingSync = true
		se.IsDeleted = false
		se.ServerID = nil

		_, err := tx.ExecContext(ctx, `
			INSERT INTO series (id, server_id, title, author, total_volumes, completed,
				is_pending_sync, is_deleted, created_at, updated_at)
			VALUES (?, NULL, ?, ?, ?, ?, 1, 0, ?, ?)
		`, se.ID, se.Title, se.Author, se.TotalVolumes, boolToInt(se.Completed),
			formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to insert series: %w", err)
		}
		return nil
	}, TableSeries)
}

// UpdateSeries applies mutate inside a scoped write transaction; see
// UpdateBook for the sync-control semantics.
func (s *Store) UpdateSeries(ctx context.Context, id string, mutate func(*Series) error) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
		se, err := scanSeries(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if se.IsDeleted {
			return ErrNotFound
		}

		meta := se.SyncMeta
		if err := mutate(se); err != nil {
			return err
		}
		se.SyncMeta = meta

		if err := s.validate.Struct("series", se); err != nil {
			return err
		}

		now := s.now(meta.UpdatedAt)
		_, err = tx.ExecContext(ctx, `
			UPDATE series SET title = ?, author = ?, total_volumes = ?, completed = ?,
				is_pending_sync = 1, updated_at = ?
			WHERE id = ?
		`, se.Title, se.Author, se.TotalVolumes, boolToInt(se.Completed),
			formatTime(now), id)
		if err != nil {
			return fmt.Errorf("failed to update series: %w", err)
		}
		return nil
	}, TableSeries)
}

// GetSeries loads a series by local id, tombstoned or not.
func (s *Store) GetSeries(ctx context.Context, id string) (*Series, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	se, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return se, err
}

// ListSeries returns all live series ordered by title.
func (s *Store) ListSeries(ctx context.Context) ([]*Series, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE is_deleted = 0 ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var out []*Series
	for rows.Next() {
		se, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}
