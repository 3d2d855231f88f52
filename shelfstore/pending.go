// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Change operations derived from a record's sync metadata.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// PendingChange is one locally pending mutation awaiting reconciliation.
// Payload carries the serialized business fields for creates and updates and
// is nil for deletions. UpdatedAt snapshots the record at collection time so
// an acknowledgment can tell whether the record changed while the push was
// on the wire.
type PendingChange struct {
	Table     string
	LocalID   string
	ServerID  *int64
	Op        string
	UpdatedAt time.Time
	Payload   json.RawMessage
}

// ListPending returns all records with is_pending_sync set, grouped by table
// in foreign-key dependency order (parents first). The operation is derived
// from the record's state: tombstoned rows become deletions, rows without a
// server id become creates, the rest become updates.
//
// Only pending rows are ever selected, so re-running a pass never re-sends
// an already acknowledged record.
func (s *Store) ListPending(ctx context.Context) ([]PendingChange, error) {
	var out []PendingChange
	for _, table := range syncTables {
		changes, err := s.listPendingTable(ctx, table)
		if err != nil {
			return nil, err
		}
		out = append(out, changes...)
	}
	return out, nil
}

func (s *Store) listPendingTable(ctx context.Context, table string) ([]PendingChange, error) {
	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, server_id, is_deleted, updated_at FROM %q WHERE is_pending_sync = 1 ORDER BY updated_at, id`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending rows of %s: %w", table, err)
	}
	defer rows.Close()

	var changes []PendingChange
	for rows.Next() {
		var (
			id        string
			serverID  sql.NullInt64
			deleted   int
			updatedAt string
		)
		if err := rows.Scan(&id, &serverID, &deleted, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending row: %w", err)
		}
		snapshot, err := parseTime(updatedAt)
		if err != nil {
			return nil, err
		}

		change := PendingChange{Table: table, LocalID: id, UpdatedAt: snapshot}
		if serverID.Valid {
			v := serverID.Int64
			change.ServerID = &v
		}
		switch {
		case deleted != 0:
			change.Op = OpDelete
		case !serverID.Valid:
			change.Op = OpCreate
		default:
			change.Op = OpUpdate
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending rows of %s: %w", table, err)
	}
	rows.Close()

	// Serialize payloads after the cursor is drained; deletions need none.
	for i := range changes {
		if changes[i].Op == OpDelete {
			continue
		}
		payload, err := s.SerializeRow(ctx, table, changes[i].LocalID)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize pending row %s.%s: %w", table, changes[i].LocalID, err)
		}
		changes[i].Payload = payload
	}
	return changes, nil
}

// PendingCount reports how many records are awaiting sync per table. Used by
// "N items failed to sync" surfaces.
func (s *Store) PendingCount(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range syncTables {
		var n int
		err := s.DB.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %q WHERE is_pending_sync = 1`, table)).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count pending rows of %s: %w", table, err)
		}
		if n > 0 {
			counts[table] = n
		}
	}
	return counts, nil
}
