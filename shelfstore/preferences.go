// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sabristratos/athneaeum-sub005/internal/normalize"
)

const preferenceColumns = `id, server_id, category, pref_type, value, normalized,
	is_pending_sync, is_deleted, created_at, updated_at`

// CreatePreference inserts a favorite/exclude rule. Normalized is computed
// from Value; a live rule with the same (category, type, normalized) already
// present is a duplicate and rejected with a ValidationError.
func (s *Store) CreatePreference(ctx context.Context, p *UserPreference) error {
	p.Normalized = normalize.Value(p.Value)
	if err := s.validate.Struct("user_preferences", p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM user_preferences
			WHERE category = ? AND pref_type = ? AND normalized = ? AND is_deleted = 0
		`, p.Category, p.Type, p.Normalized).Scan(&existing)
		if err == nil {
			return &ValidationError{Entity: "user_preferences", Field: "value", Reason: "duplicate preference"}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check for duplicate preference: %w", err)
		}

		now := s.now(p.UpdatedAt)
		p.CreatedAt = now
		p.UpdatedAt = now
		p.IsPendingSync = true
		p.IsDeleted = false
		p.ServerID = nil

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_preferences (id, server_id, category, pref_type, value, normalized,
				is_pending_sync, is_deleted, created_at, updated_at)
			VALUES (?, NULL, ?, ?, ?, ?, 1, 0, ?, ?)
		`, p.ID, p.Category, p.Type, p.Value, p.Normalized, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to insert preference: %w", err)
		}
		return nil
	}, TableUserPreferences)
}

// UpdatePreferenceValue changes the raw value of a rule and recomputes its
// normalized form in the same write transaction.
func (s *Store) UpdatePreferenceValue(ctx context.Context, id, value string) error {
	normalized := normalize.Value(value)
	if normalized == "" {
		return &ValidationError{Entity: "user_preferences", Field: "value", Reason: "failed required check"}
	}

	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		prev, err := recordUpdatedAt(ctx, tx, TableUserPreferences, id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE user_preferences SET value = ?, normalized = ?, is_pending_sync = 1, updated_at = ?
			WHERE id = ?
		`, value, normalized, formatTime(s.now(prev)), id)
		if err != nil {
			return fmt.Errorf("failed to update preference: %w", err)
		}
		return nil
	}, TableUserPreferences)
}

// GetPreference loads a preference by local id, tombstoned or not.
func (s *Store) GetPreference(ctx context.Context, id string) (*UserPreference, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM user_preferences WHERE id = ?`, id)
	p, err := scanUserPreference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// FindPreference locates a live rule by its normalized value.
func (s *Store) FindPreference(ctx context.Context, category, prefType, value string) (*UserPreference, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+preferenceColumns+` FROM user_preferences
		WHERE category = ? AND pref_type = ? AND normalized = ? AND is_deleted = 0
	`, category, prefType, normalize.Value(value))
	p, err := scanUserPreference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// PreferenceIDByServerID resolves a server identifier to the local id of the
// row it was assigned to, if any. Used during hydration to keep local ids
// stable across passes.
func (s *Store) PreferenceIDByServerID(ctx context.Context, serverID int64) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id FROM user_preferences WHERE server_id = ?`, serverID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up preference by server id: %w", err)
	}
	return id, nil
}

// ListPreferences returns all live rules grouped by category then type.
func (s *Store) ListPreferences(ctx context.Context) ([]*UserPreference, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+preferenceColumns+` FROM user_preferences
		 WHERE is_deleted = 0 ORDER BY category, pref_type, normalized`)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*UserPreference
	for rows.Next() {
		p, err := scanUserPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
