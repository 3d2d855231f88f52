// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sabristratos/athneaeum-sub005/internal/normalize"
	"github.com/sabristratos/athneaeum-sub005/shelfstore"
)

// Config holds reconciler limits.
type Config struct {
	BatchLimit int // max items per request, e.g. 200
}

// DefaultConfig returns the default reconciler limits.
func DefaultConfig() *Config {
	return &Config{BatchLimit: 200}
}

// Reconciler runs batch reconciliation passes: it collects all pending local
// mutations, pushes them to the remote in partitioned batches and applies
// the per-item results back, one record per write transaction.
//
// The reconciler never retries on its own; a pass either finishes or returns
// an error, and the caller (periodic scheduler or user action) decides when
// to run the next one. Mutations made while a pass is in flight stay pending
// and are picked up by the next pass.
type Reconciler struct {
	store  *shelfstore.Store
	client *Client
	config *Config
	logger *slog.Logger
}

// NewReconciler wires a reconciler to its store and remote client.
func NewReconciler(store *shelfstore.Store, client *Client, config *Config) *Reconciler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reconciler{
		store:  store,
		client: client,
		config: config,
		logger: slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (r *Reconciler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// ItemFailure describes one record that stayed pending after a pass.
type ItemFailure struct {
	Table   string
	LocalID string
	Reason  string
	Message string
}

// Err returns the failure as a ServerRejection error.
func (f ItemFailure) Err() error {
	return &ServerRejection{
		Table:   f.Table,
		LocalID: f.LocalID,
		Reason:  f.Reason,
		Message: f.Message,
	}
}

// Result summarizes one reconciliation pass, for "N items failed to sync"
// surfaces.
type Result struct {
	Sent        int
	Applied     int
	Failed      int
	PurgedLocal int
	Failures    []ItemFailure
}

func (res *Result) fail(table, localID, reason, message string) {
	res.Failed++
	res.Failures = append(res.Failures, ItemFailure{
		Table:   table,
		LocalID: localID,
		Reason:  reason,
		Message: message,
	})
}

// Run executes one reconciliation pass.
//
// Ordering within a pass: never-synced tombstones are purged locally first
// (no network), then creates and updates go out parent-before-child, then
// deletions go out child-before-parent. A preference is therefore never
// created before the book its value came from, and nothing is deleted before
// the records depending on it were dealt with.
//
// A transport failure aborts the pass with a NetworkError; requests that had
// already been acknowledged keep their applied results, everything else
// simply stays pending for the next pass.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	purged, err := r.store.PurgeNeverSynced(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to purge never-synced tombstones: %w", err)
	}
	for _, n := range purged {
		res.PurgedLocal += n
	}

	pending, err := r.store.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to collect pending records: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}

	byTable := make(map[string][]shelfstore.PendingChange)
	for _, ch := range pending {
		byTable[ch.Table] = append(byTable[ch.Table], ch)
	}

	// Local ids whose create was rejected in this pass; dependent creates
	// are held back (left pending) instead of being sent to certain failure.
	failedCreates := make(map[string]map[string]bool)

	tables := shelfstore.SyncTables()

	// Phase 1: creates and updates, parents first.
	for _, table := range tables {
		var creates, updates []shelfstore.PendingChange
		for _, ch := range byTable[table] {
			switch ch.Op {
			case shelfstore.OpCreate:
				if parentTable, parentID, ok := parentRef(table, ch.Payload); ok && failedCreates[parentTable][parentID] {
					r.logger.Debug("holding back create, parent rejected in this pass",
						"table", table, "id", ch.LocalID, "parent", parentID)
					markCreateFailed(failedCreates, table, ch.LocalID)
					res.fail(table, ch.LocalID, ReasonParentMissing, "parent rejected in same pass")
					continue
				}
				creates = append(creates, ch)
			case shelfstore.OpUpdate:
				updates = append(updates, ch)
			}
		}

		if table == shelfstore.TableUserPreferences {
			if err := r.pushPreferenceCreates(ctx, creates, res, failedCreates); err != nil {
				return res, err
			}
		} else if err := r.pushPartition(ctx, table, creates, res, failedCreates); err != nil {
			return res, err
		}
		if err := r.pushPartition(ctx, table, updates, res, failedCreates); err != nil {
			return res, err
		}
	}

	// Phase 2: deletions, children first.
	for i := len(tables) - 1; i >= 0; i-- {
		table := tables[i]
		var deletes []shelfstore.PendingChange
		for _, ch := range byTable[table] {
			if ch.Op == shelfstore.OpDelete {
				deletes = append(deletes, ch)
			}
		}
		if table == shelfstore.TableUserPreferences {
			if err := r.pushPreferenceDeletes(ctx, deletes, res); err != nil {
				return res, err
			}
		} else if err := r.pushPartition(ctx, table, deletes, res, failedCreates); err != nil {
			return res, err
		}
	}

	r.logger.Info("reconciliation pass finished",
		"sent", res.Sent, "applied", res.Applied, "failed", res.Failed,
		"purged_local", res.PurgedLocal)
	return res, nil
}

// pushPartition sends one partition of one entity type through /sync/push in
// chunks of the configured batch limit and applies per-item results.
func (r *Reconciler) pushPartition(ctx context.Context, table string, changes []shelfstore.PendingChange, res *Result, failedCreates map[string]map[string]bool) error {
	for start := 0; start < len(changes); start += r.chunkSize() {
		end := start + r.chunkSize()
		if end > len(changes) {
			end = len(changes)
		}
		chunk := changes[start:end]

		req := &PushRequest{Changes: make([]PushChange, len(chunk))}
		for i, ch := range chunk {
			req.Changes[i] = PushChange{
				Entity:   ch.Table,
				Op:       ch.Op,
				LocalID:  ch.LocalID,
				ServerID: ch.ServerID,
				Payload:  ch.Payload,
			}
		}

		resp, err := r.client.Push(ctx, req)
		if err != nil {
			// Full-batch failure: nothing in this chunk was acknowledged and
			// nothing local changes; every record stays pending for retry.
			return err
		}
		res.Sent += len(chunk)

		for i, result := range resp.Results {
			ch := chunk[i]
			if result.LocalID != "" && result.LocalID != ch.LocalID {
				res.fail(table, ch.LocalID, ReasonInternalError, "result for unexpected record "+result.LocalID)
				continue
			}
			r.applyPushResult(ctx, ch, result, res, failedCreates)
		}
	}
	return nil
}

// applyPushResult updates one record inside its own write transaction.
func (r *Reconciler) applyPushResult(ctx context.Context, ch shelfstore.PendingChange, result PushResult, res *Result, failedCreates map[string]map[string]bool) {
	if result.Status != StApplied {
		if ch.Op == shelfstore.OpCreate {
			markCreateFailed(failedCreates, ch.Table, ch.LocalID)
		}
		res.fail(ch.Table, ch.LocalID, result.Reason, result.Message)
		return
	}

	var err error
	switch ch.Op {
	case shelfstore.OpCreate:
		if result.ServerID == nil {
			markCreateFailed(failedCreates, ch.Table, ch.LocalID)
			res.fail(ch.Table, ch.LocalID, ReasonInternalError, "applied create without server id")
			return
		}
		err = r.store.ConfirmSynced(ctx, ch.Table, ch.LocalID, *result.ServerID, ch.UpdatedAt)
	case shelfstore.OpUpdate:
		if ch.ServerID == nil {
			res.fail(ch.Table, ch.LocalID, ReasonInternalError, "update acknowledged for record without server id")
			return
		}
		err = r.store.ConfirmSynced(ctx, ch.Table, ch.LocalID, *ch.ServerID, ch.UpdatedAt)
	case shelfstore.OpDelete:
		err = r.store.Purge(ctx, ch.Table, ch.LocalID)
		if errors.Is(err, shelfstore.ErrNotFound) {
			err = nil // already gone locally
		}
	}
	if err != nil {
		// The local write failed; the record stays pending and is retried.
		res.fail(ch.Table, ch.LocalID, ReasonInternalError, err.Error())
		return
	}
	res.Applied++
}

// pushPreferenceCreates routes preference creates through the concrete
// POST /preferences/batch endpoint.
func (r *Reconciler) pushPreferenceCreates(ctx context.Context, changes []shelfstore.PendingChange, res *Result, failedCreates map[string]map[string]bool) error {
	for start := 0; start < len(changes); start += r.chunkSize() {
		end := start + r.chunkSize()
		if end > len(changes) {
			end = len(changes)
		}
		chunk := changes[start:end]

		req := &BatchPreferenceRequest{Preferences: make([]PreferenceInput, len(chunk))}
		for i, ch := range chunk {
			input, err := preferenceInput(ch)
			if err != nil {
				return err
			}
			req.Preferences[i] = *input
		}

		resp, err := r.client.BatchCreatePreferences(ctx, req)
		if err != nil {
			return err
		}
		res.Sent += len(chunk)

		for i, result := range resp.Results {
			ch := chunk[i]
			if result.ClientRef != "" && result.ClientRef != ch.LocalID {
				res.fail(ch.Table, ch.LocalID, ReasonInternalError, "result for unexpected record "+result.ClientRef)
				continue
			}
			if result.Status != StApplied || result.ID == nil {
				markCreateFailed(failedCreates, ch.Table, ch.LocalID)
				reason := result.Reason
				if reason == "" {
					reason = ReasonInternalError
				}
				res.fail(ch.Table, ch.LocalID, reason, result.Message)
				continue
			}
			if err := r.store.ConfirmSynced(ctx, ch.Table, ch.LocalID, *result.ID, ch.UpdatedAt); err != nil {
				res.fail(ch.Table, ch.LocalID, ReasonInternalError, err.Error())
				continue
			}
			res.Applied++
		}
	}
	return nil
}

// pushPreferenceDeletes routes preference deletions through the concrete
// DELETE /preferences/batch endpoint. Tombstones are addressed by server
// identifier; never-synced tombstones were already purged locally.
func (r *Reconciler) pushPreferenceDeletes(ctx context.Context, changes []shelfstore.PendingChange, res *Result) error {
	var withServerID []shelfstore.PendingChange
	for _, ch := range changes {
		if ch.ServerID != nil {
			withServerID = append(withServerID, ch)
		}
	}

	for start := 0; start < len(withServerID); start += r.chunkSize() {
		end := start + r.chunkSize()
		if end > len(withServerID) {
			end = len(withServerID)
		}
		chunk := withServerID[start:end]

		req := &BatchDeleteRequest{IDs: make([]int64, len(chunk))}
		for i, ch := range chunk {
			req.IDs[i] = *ch.ServerID
		}

		resp, err := r.client.BatchDeletePreferences(ctx, req)
		if err != nil {
			return err
		}
		res.Sent += len(chunk)

		for i, result := range resp.Results {
			ch := chunk[i]
			if result.Status != StApplied {
				res.fail(ch.Table, ch.LocalID, result.Reason, result.Message)
				continue
			}
			if err := r.store.Purge(ctx, ch.Table, ch.LocalID); err != nil && !errors.Is(err, shelfstore.ErrNotFound) {
				res.fail(ch.Table, ch.LocalID, ReasonInternalError, err.Error())
				continue
			}
			res.Applied++
		}
	}
	return nil
}

// HydratePreferences pulls the server's preference set and materializes it
// locally as already-synced rows. Pending local rows are never overwritten.
// Returns the number of rows applied.
func (r *Reconciler) HydratePreferences(ctx context.Context) (int, error) {
	prefs, err := r.client.GetPreferences(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([]shelfstore.RemoteRow, 0, len(prefs))
	for _, p := range prefs {
		localID, err := r.store.PreferenceIDByServerID(ctx, p.ID)
		if errors.Is(err, shelfstore.ErrNotFound) {
			localID = uuid.New().String()
		} else if err != nil {
			return 0, err
		}
		rows = append(rows, shelfstore.RemoteRow{
			Table:    shelfstore.TableUserPreferences,
			LocalID:  localID,
			ServerID: p.ID,
			Payload: map[string]any{
				"category":   p.Category,
				"pref_type":  p.Type,
				"value":      p.Value,
				"normalized": normalize.Value(p.Value),
			},
		})
	}
	return r.store.ApplyRemote(ctx, rows)
}

func (r *Reconciler) chunkSize() int {
	if r.config.BatchLimit > 0 {
		return r.config.BatchLimit
	}
	return 200
}

func markCreateFailed(failed map[string]map[string]bool, table, id string) {
	if failed[table] == nil {
		failed[table] = make(map[string]bool)
	}
	failed[table][id] = true
}

// preferenceInput builds the wire input for a pending preference create from
// its serialized payload.
func preferenceInput(ch shelfstore.PendingChange) (*PreferenceInput, error) {
	var payload struct {
		Category string `json:"category"`
		PrefType string `json:"pref_type"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(ch.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode preference payload for %s: %w", ch.LocalID, err)
	}
	return &PreferenceInput{
		ClientRef: ch.LocalID,
		Category:  payload.Category,
		Type:      payload.PrefType,
		Value:     payload.Value,
	}, nil
}

// parentRef extracts a change's parent reference from its payload, if the
// entity type has one.
func parentRef(table string, payload json.RawMessage) (parentTable, parentID string, ok bool) {
	if len(payload) == 0 {
		return "", "", false
	}
	switch table {
	case shelfstore.TableBooks:
		var p struct {
			SeriesID *string `json:"series_id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.SeriesID == nil {
			return "", "", false
		}
		return shelfstore.TableSeries, *p.SeriesID, true
	case shelfstore.TableUserBooks, shelfstore.TableReadingSessions:
		var p struct {
			BookID string `json:"book_id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.BookID == "" {
			return "", "", false
		}
		return shelfstore.TableBooks, p.BookID, true
	default:
		return "", "", false
	}
}
