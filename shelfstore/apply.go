// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RemoteRow is an authoritative server-side record being materialized
// locally, e.g. during initial preference hydration. Payload holds the
// business columns keyed by column name.
type RemoteRow struct {
	Table    string
	LocalID  string
	ServerID int64
	Payload  map[string]any
}

// ApplyRemote upserts server-owned rows into the local store as already
// synced (server id set, not pending, not deleted). Rows that are locally
// pending are skipped: a local mutation is never silently overwritten by
// hydration, it is pushed on the next reconciliation pass instead.
func (s *Store) ApplyRemote(ctx context.Context, remote []RemoteRow) (applied int, err error) {
	for _, row := range remote {
		ok, err := s.applyRemoteRow(ctx, row)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

func (s *Store) applyRemoteRow(ctx context.Context, row RemoteRow) (bool, error) {
	if err := validTable(row.Table); err != nil {
		return false, err
	}
	info, err := tableInfos.get(s.DB, row.Table)
	if err != nil {
		return false, err
	}

	applied := false
	err = s.WriteTx(ctx, func(tx *sql.Tx) error {
		var pending int
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT is_pending_sync FROM %q WHERE id = ?`, row.Table),
			row.LocalID).Scan(&pending)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check local state of %s.%s: %w", row.Table, row.LocalID, err)
		}
		if err == nil && pending != 0 {
			s.logger.Debug("skipping hydration over pending local row",
				"table", row.Table, "id", row.LocalID)
			return nil
		}

		columns := []string{"id", "server_id", "is_pending_sync", "is_deleted"}
		values := []any{row.LocalID, row.ServerID, 0, 0}
		for _, col := range info.Columns {
			name := strings.ToLower(col.Name)
			if syncControlColumns[name] {
				continue
			}
			val, ok := row.Payload[name]
			if !ok {
				continue
			}
			columns = append(columns, name)
			values = append(values, normalizeSQLValue(val))
		}

		// Timestamp columns are NOT NULL; fill them in when the server
		// payload does not carry them.
		now := formatTime(s.nowFn().UTC())
		for _, ts := range []string{"created_at", "updated_at"} {
			found := false
			for _, col := range columns {
				if col == ts {
					found = true
					break
				}
			}
			if !found {
				columns = append(columns, ts)
				values = append(values, now)
			}
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		assignments := make([]string, 0, len(columns))
		for _, col := range columns {
			if col == "id" {
				continue
			}
			assignments = append(assignments, fmt.Sprintf("%q = excluded.%q", col, col))
		}

		query := fmt.Sprintf(
			`INSERT INTO %q (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
			row.Table,
			`"`+strings.Join(columns, `", "`)+`"`,
			placeholders,
			strings.Join(assignments, ", "),
		)
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to upsert remote row %s.%s: %w", row.Table, row.LocalID, err)
		}
		applied = true
		return nil
	}, row.Table)
	return applied, err
}

// normalizeSQLValue converts decoded JSON values into types the sqlite
// driver accepts directly.
func normalizeSQLValue(v any) any {
	switch val := v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(data)
	case float64:
		// JSON numbers decode as float64; integral values are stored as ints.
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return v
	}
}
