package shelfstore

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestCreateStartsLocal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune", Author: "Frank Herbert"}
	require.NoError(t, store.CreateBook(ctx, b))

	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.Nil(t, got.ServerID)
	require.True(t, got.IsPendingSync)
	require.False(t, got.IsDeleted)
	require.Equal(t, StateLocal, StateOf(got.SyncMeta))
}

func TestSoftDeleteImpliesPendingSync(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 42))

	require.NoError(t, store.SoftDelete(ctx, TableBooks, b.ID))

	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted)
	require.True(t, got.IsPendingSync, "a tombstone is always also pending sync")
	require.Equal(t, StateTombstoned, StateOf(got.SyncMeta))
}

func TestMarkSyncedAssignsServerIDOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))

	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 42))
	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ServerID)
	require.Equal(t, int64(42), *got.ServerID)
	require.False(t, got.IsPendingSync)
	require.Equal(t, StateSynced, StateOf(got.SyncMeta))

	// A different id must never overwrite the assigned one.
	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 99))
	got, err = store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(42), *got.ServerID)
}

func TestMarkSyncedIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))

	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 7))
	first, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 7))
	second, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestConfirmSyncedComparesSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))

	// Unchanged since collection: the acknowledgment settles the record.
	require.NoError(t, store.ConfirmSynced(ctx, TableBooks, b.ID, 42, b.UpdatedAt))
	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(42), *got.ServerID)
	require.False(t, got.IsPendingSync)

	// Mutated after collection: the pending flag survives the acknowledgment.
	require.NoError(t, store.UpdateBook(ctx, b.ID, func(book *Book) error {
		book.Author = "Frank Herbert"
		return nil
	}))
	stale, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, store.ConfirmSynced(ctx, TableBooks, b.ID, 42, b.UpdatedAt))
	after, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, after.IsPendingSync)
	require.Equal(t, stale.UpdatedAt, after.UpdatedAt)
}

func TestConfirmSyncedLeavesTombstonePending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 7))
	require.NoError(t, store.MarkForSync(ctx, TableBooks, b.ID))
	sent, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, store.SoftDelete(ctx, TableBooks, b.ID))

	require.NoError(t, store.ConfirmSynced(ctx, TableBooks, b.ID, 7, sent.UpdatedAt))
	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted)
	require.True(t, got.IsPendingSync)
}

func TestDirtyAfterPostSyncEdit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 1))

	require.NoError(t, store.UpdateBook(ctx, b.ID, func(book *Book) error {
		book.Author = "Frank Herbert"
		return nil
	}))

	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, got.IsPendingSync)
	require.NotNil(t, got.ServerID)
	require.Equal(t, StateDirty, StateOf(got.SyncMeta))
}

func TestPurgeRequiresTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 1))

	// Synced records may not jump straight to purged.
	require.ErrorIs(t, store.Purge(ctx, TableBooks, b.ID), ErrNotTombstoned)

	require.NoError(t, store.SoftDelete(ctx, TableBooks, b.ID))
	require.NoError(t, store.Purge(ctx, TableBooks, b.ID))

	_, err := store.GetBook(ctx, b.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeNeverSynced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Never synced, then deleted: purgeable without the network.
	local := &Book{Title: "Local Only"}
	require.NoError(t, store.CreateBook(ctx, local))
	require.NoError(t, store.SoftDelete(ctx, TableBooks, local.ID))

	// Synced then deleted: must wait for server confirmation.
	synced := &Book{Title: "Synced"}
	require.NoError(t, store.CreateBook(ctx, synced))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, synced.ID, 5))
	require.NoError(t, store.SoftDelete(ctx, TableBooks, synced.ID))

	purged, err := store.PurgeNeverSynced(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{TableBooks: 1}, purged)

	_, err = store.GetBook(ctx, local.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetBook(ctx, synced.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted)
}
