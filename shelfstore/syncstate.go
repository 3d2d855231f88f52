// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncState is the per-record lifecycle derived from the sync-control
// columns. Syncing (an in-flight batch) is transient and never persisted, so
// it has no value here.
type SyncState int

const (
	// StateLocal: created offline, never acknowledged (server_id null, pending).
	StateLocal SyncState = iota
	// StateSynced: server state matches local state.
	StateSynced
	// StateDirty: a post-sync local edit is awaiting upload.
	StateDirty
	// StateTombstoned: soft-deleted, deletion awaiting upload.
	StateTombstoned
)

func (s SyncState) String() string {
	switch s {
	case StateLocal:
		return "local"
	case StateSynced:
		return "synced"
	case StateDirty:
		return "dirty"
	case StateTombstoned:
		return "tombstoned"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// StateOf classifies a record by its sync metadata.
func StateOf(meta SyncMeta) SyncState {
	switch {
	case meta.IsDeleted:
		return StateTombstoned
	case !meta.IsPendingSync:
		return StateSynced
	case meta.ServerID == nil:
		return StateLocal
	default:
		return StateDirty
	}
}

// ErrNotTombstoned rejects a purge of a record that was not soft-deleted
// first. Every remote deletion is preceded by a local soft-delete; records
// never jump from synced straight to purged.
var ErrNotTombstoned = errors.New("record is not tombstoned")

// MarkForSync flags a record as diverged from the last known server state
// and bumps its updated_at.
func (s *Store) MarkForSync(ctx context.Context, table, id string) error {
	if err := validTable(table); err != nil {
		return err
	}
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		return s.markForSyncInTx(ctx, tx, table, id)
	}, table)
}

func (s *Store) markForSyncInTx(ctx context.Context, tx *sql.Tx, table, id string) error {
	prev, err := recordUpdatedAt(ctx, tx, table, id)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET is_pending_sync = 1, updated_at = ? WHERE id = ?`, table),
		formatTime(s.now(prev)), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s.%s for sync: %w", table, id, err)
	}
	return nil
}

// MarkSynced records a server acknowledgment: the server identifier is
// assigned if (and only if) it is still null, and the pending flag clears.
// Server identifiers are immutable once set; an acknowledgment carrying a
// different id leaves the stored id untouched. Calling twice with the same
// id is a no-op the second time.
//
// The pending flag clears unconditionally here; acknowledgments for batched
// changes go through ConfirmSynced instead, which leaves a record pending
// when it was mutated after the change was collected.
func (s *Store) MarkSynced(ctx context.Context, table, id string, serverID int64) error {
	if err := validTable(table); err != nil {
		return err
	}
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		var current sql.NullInt64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT server_id FROM %q WHERE id = ?`, table), id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read server id for %s.%s: %w", table, id, err)
		}

		if !current.Valid {
			_, err = tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %q SET server_id = ?, is_pending_sync = 0 WHERE id = ?`, table),
				serverID, id)
			if err != nil {
				return fmt.Errorf("failed to mark %s.%s synced: %w", table, id, err)
			}
			return nil
		}

		if current.Int64 != serverID {
			s.logger.Warn("ignoring server id reassignment",
				"table", table, "id", id, "have", current.Int64, "got", serverID)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %q SET is_pending_sync = 0 WHERE id = ?`, table), id)
		if err != nil {
			return fmt.Errorf("failed to clear pending flag for %s.%s: %w", table, id, err)
		}
		return nil
	}, table)
}

// ConfirmSynced records a server acknowledgment for a change that was
// collected when the record's updated_at read asOf. The server identifier is
// assigned as in MarkSynced, but the pending flag only clears when the
// record is unchanged since collection: a mutation committed while the push
// was on the wire (an edit, or a soft delete) bumps updated_at, so the
// record stays pending and goes out with the next pass.
func (s *Store) ConfirmSynced(ctx context.Context, table, id string, serverID int64, asOf time.Time) error {
	if err := validTable(table); err != nil {
		return err
	}
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		var current sql.NullInt64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT server_id FROM %q WHERE id = ?`, table), id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read server id for %s.%s: %w", table, id, err)
		}

		if !current.Valid {
			_, err = tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %q SET server_id = ? WHERE id = ?`, table), serverID, id)
			if err != nil {
				return fmt.Errorf("failed to assign server id to %s.%s: %w", table, id, err)
			}
		} else if current.Int64 != serverID {
			s.logger.Warn("ignoring server id reassignment",
				"table", table, "id", id, "have", current.Int64, "got", serverID)
		}

		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %q SET is_pending_sync = 0 WHERE id = ? AND updated_at = ? AND is_deleted = 0`, table),
			id, formatTime(asOf))
		if err != nil {
			return fmt.Errorf("failed to clear pending flag for %s.%s: %w", table, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			s.logger.Debug("record changed while push was in flight, staying pending",
				"table", table, "id", id)
		}
		return nil
	}, table)
}

// SoftDelete tombstones a record: it stays in the store, flagged both
// deleted and pending, until the reconciler confirms the deletion remotely
// (or purges it locally when it was never synced).
func (s *Store) SoftDelete(ctx context.Context, table, id string) error {
	if err := validTable(table); err != nil {
		return err
	}
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		return s.softDeleteInTx(ctx, tx, table, id)
	}, table)
}

func (s *Store) softDeleteInTx(ctx context.Context, tx *sql.Tx, table, id string) error {
	prev, err := recordUpdatedAt(ctx, tx, table, id)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET is_deleted = 1, is_pending_sync = 1, updated_at = ? WHERE id = ?`, table),
		formatTime(s.now(prev)), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete %s.%s: %w", table, id, err)
	}
	return nil
}

// Purge physically removes a tombstoned record. Purging a live record is
// forbidden and returns ErrNotTombstoned.
func (s *Store) Purge(ctx context.Context, table, id string) error {
	if err := validTable(table); err != nil {
		return err
	}
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		var deleted int
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT is_deleted FROM %q WHERE id = ?`, table), id).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read tombstone flag for %s.%s: %w", table, id, err)
		}
		if deleted == 0 {
			return ErrNotTombstoned
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table), id); err != nil {
			return fmt.Errorf("failed to purge %s.%s: %w", table, id, err)
		}
		return nil
	}, table)
}

// PurgeNeverSynced removes tombstoned records the server has never seen
// (server_id still null). These need no network round trip at all.
// Returns the number of purged rows per table.
func (s *Store) PurgeNeverSynced(ctx context.Context) (map[string]int, error) {
	purged := make(map[string]int)
	for _, table := range syncTables {
		var n int64
		err := s.WriteTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %q WHERE is_deleted = 1 AND server_id IS NULL`, table))
			if err != nil {
				return fmt.Errorf("failed to purge never-synced rows from %s: %w", table, err)
			}
			n, _ = res.RowsAffected()
			return nil
		}, table)
		if err != nil {
			return purged, err
		}
		if n > 0 {
			purged[table] = int(n)
		}
	}
	return purged, nil
}

func recordUpdatedAt(ctx context.Context, tx *sql.Tx, table, id string) (time.Time, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT updated_at FROM %q WHERE id = ?`, table), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read updated_at for %s.%s: %w", table, id, err)
	}
	return parseTime(raw)
}

func validTable(table string) error {
	for _, t := range syncTables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("unknown sync table %q", table)
}
