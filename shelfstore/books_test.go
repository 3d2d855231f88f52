package shelfstore

import (
	"context"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestCreateBookRequiresTitle(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateBook(context.Background(), &Book{Author: "Nobody"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "books", verr.Entity)
	require.Equal(t, "title", verr.Field)
}

func TestCreateBookRejectsMissingSeries(t *testing.T) {
	store := newTestStore(t)

	missing := "no-such-series"
	err := store.CreateBook(context.Background(), &Book{Title: "Dune", SeriesID: &missing})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateBookRejectsTombstonedSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	se := &Series{Title: "Dune Chronicles"}
	require.NoError(t, store.CreateSeries(ctx, se))
	require.NoError(t, store.SoftDelete(ctx, TableSeries, se.ID))

	err := store.CreateBook(ctx, &Book{Title: "Dune", SeriesID: &se.ID})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUpdateBookMutatorErrorPersistsNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 3))

	boom := errors.New("boom")
	err := store.UpdateBook(ctx, b.ID, func(book *Book) error {
		book.Title = "Changed"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "Dune", got.Title)
	require.False(t, got.IsPendingSync)
}

func TestUpdateBookCannotTouchSyncFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	require.NoError(t, store.MarkSynced(ctx, TableBooks, b.ID, 9))

	require.NoError(t, store.UpdateBook(ctx, b.ID, func(book *Book) error {
		fake := int64(1234)
		book.ServerID = &fake
		book.IsDeleted = true
		book.Title = "Dune Messiah"
		return nil
	}))

	got, err := store.GetBook(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, "Dune Messiah", got.Title)
	require.Equal(t, int64(9), *got.ServerID)
	require.False(t, got.IsDeleted)
	require.True(t, got.IsPendingSync)
}

func TestUpdateTombstonedBookNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune"}
	require.NoError(t, store.CreateBook(ctx, b))
	require.NoError(t, store.SoftDelete(ctx, TableBooks, b.ID))

	err := store.UpdateBook(ctx, b.ID, func(book *Book) error {
		book.Title = "Changed"
		return nil
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListBooksExcludesTombstones(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keep := &Book{Title: "Alpha"}
	gone := &Book{Title: "Beta"}
	require.NoError(t, store.CreateBook(ctx, keep))
	require.NoError(t, store.CreateBook(ctx, gone))
	require.NoError(t, store.SoftDelete(ctx, TableBooks, gone.ID))

	books, err := store.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, keep.ID, books[0].ID)
}

func TestListBooksInSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	se := &Series{Title: "Dune Chronicles"}
	require.NoError(t, store.CreateSeries(ctx, se))

	second := &Book{Title: "Dune Messiah", SeriesID: &se.ID, VolumeNumber: 2}
	first := &Book{Title: "Dune", SeriesID: &se.ID, VolumeNumber: 1}
	loose := &Book{Title: "Hyperion"}
	require.NoError(t, store.CreateBook(ctx, second))
	require.NoError(t, store.CreateBook(ctx, first))
	require.NoError(t, store.CreateBook(ctx, loose))

	books, err := store.ListBooksInSeries(ctx, se.ID)
	require.NoError(t, err)
	require.Len(t, books, 2)
	require.Equal(t, first.ID, books[0].ID)
	require.Equal(t, second.ID, books[1].ID)
}

func TestBookByISBN(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &Book{Title: "Dune", ISBN: "9780441013593"}
	require.NoError(t, store.CreateBook(ctx, b))

	got, err := store.BookByISBN(ctx, "9780441013593")
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)

	_, err = store.BookByISBN(ctx, "0000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}
