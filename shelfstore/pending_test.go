package shelfstore

import (
	"context"
	"encoding/json"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestListPendingDerivesOperations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := &Book{Title: "Fresh"}
	require.NoError(t, store.CreateBook(ctx, created))

	updated := &Book{Title: "Edited"}
	require.NoError(t, store.CreateBook(ctx, updated))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, updated.ID, 1))
	require.NoError(t, store.UpdateBook(ctx, updated.ID, func(b *Book) error {
		b.Author = "Somebody"
		return nil
	}))

	deleted := &Book{Title: "Gone"}
	require.NoError(t, store.CreateBook(ctx, deleted))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, deleted.ID, 2))
	require.NoError(t, store.SoftDelete(ctx, TableBooks, deleted.ID))

	settled := &Book{Title: "Settled"}
	require.NoError(t, store.CreateBook(ctx, settled))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, settled.ID, 3))

	changes, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	ops := make(map[string]PendingChange, len(changes))
	for _, ch := range changes {
		require.Equal(t, TableBooks, ch.Table)
		ops[ch.LocalID] = ch
	}
	require.Equal(t, OpCreate, ops[created.ID].Op)
	require.Nil(t, ops[created.ID].ServerID)
	require.Equal(t, OpUpdate, ops[updated.ID].Op)
	require.Equal(t, int64(1), *ops[updated.ID].ServerID)
	require.Equal(t, OpDelete, ops[deleted.ID].Op)
	require.Nil(t, ops[deleted.ID].Payload)
	require.NotContains(t, ops, settled.ID)
}

func TestListPendingOrdersParentTablesFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Create children before their parents; dependency order must still
	// put series before books and books before sessions in the output.
	se := &Series{Title: "Dune Chronicles"}
	require.NoError(t, store.CreateSeries(ctx, se))
	b := &Book{Title: "Dune", SeriesID: &se.ID}
	require.NoError(t, store.CreateBook(ctx, b))
	rs := &ReadingSession{BookID: b.ID, DurationMinutes: 30}
	require.NoError(t, store.CreateReadingSession(ctx, rs))

	changes, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	require.Equal(t, TableSeries, changes[0].Table)
	require.Equal(t, TableBooks, changes[1].Table)
	require.Equal(t, TableReadingSessions, changes[2].Table)
}

func TestPendingPayloadExcludesSyncControlColumns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune", Author: "Frank Herbert", Genres: []string{"sf"}}
	require.NoError(t, store.CreateBook(ctx, b))

	changes, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(changes[0].Payload, &payload))
	require.Equal(t, "Dune", payload["title"])
	require.Equal(t, "Frank Herbert", payload["author"])
	for _, col := range []string{"id", "server_id", "is_pending_sync", "is_deleted"} {
		require.NotContains(t, payload, col)
	}
}

func TestPendingCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	p := &UserPreference{Category: CategoryGenre, Type: PrefFavorite, Value: "Fantasy"}
	require.NoError(t, store.CreatePreference(ctx, p))

	counts, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{TableBooks: 1, TableUserPreferences: 1}, counts)

	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 1))
	counts, err = store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{TableUserPreferences: 1}, counts)
}
