package shelfstore

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestApplyRemoteInsertsSyncedRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	applied, err := store.ApplyRemote(ctx, []RemoteRow{{
		Table:    TableUserPreferences,
		LocalID:  "pref-1",
		ServerID: 100,
		Payload: map[string]any{
			"category":   CategoryGenre,
			"pref_type":  PrefFavorite,
			"value":      "Fantasy",
			"normalized": "fantasy",
		},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	p, err := store.GetPreference(ctx, "pref-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), *p.ServerID)
	require.False(t, p.IsPendingSync)
	require.False(t, p.IsDeleted)
	require.Equal(t, "Fantasy", p.Value)
	require.Equal(t, StateSynced, StateOf(p.SyncMeta))
}

func TestApplyRemoteUpdatesExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &UserPreference{Category: CategoryGenre, Type: PrefFavorite, Value: "Fantasy"}
	require.NoError(t, store.CreatePreference(ctx, p))
	require.NoError(t, store.MarkSynced(ctx, TableUserPreferences, p.ID, 100))

	applied, err := store.ApplyRemote(ctx, []RemoteRow{{
		Table:    TableUserPreferences,
		LocalID:  p.ID,
		ServerID: 100,
		Payload: map[string]any{
			"category":   CategoryGenre,
			"pref_type":  PrefFavorite,
			"value":      "High Fantasy",
			"normalized": "high fantasy",
		},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	got, err := store.GetPreference(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "High Fantasy", got.Value)
}

func TestApplyRemoteSkipsPendingLocalRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &UserPreference{Category: CategoryGenre, Type: PrefFavorite, Value: "Fantasy"}
	require.NoError(t, store.CreatePreference(ctx, p))

	applied, err := store.ApplyRemote(ctx, []RemoteRow{{
		Table:    TableUserPreferences,
		LocalID:  p.ID,
		ServerID: 100,
		Payload:  map[string]any{"value": "Overwritten"},
	}})
	require.NoError(t, err)
	require.Equal(t, 0, applied)

	got, err := store.GetPreference(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Fantasy", got.Value)
	require.True(t, got.IsPendingSync)
	require.Nil(t, got.ServerID)
}
