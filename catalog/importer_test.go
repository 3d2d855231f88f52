package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/sabristratos/athneaeum-sub005/shelfstore"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newImportStore(t *testing.T) *shelfstore.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store, err := shelfstore.OpenDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type feedBook struct {
	ISBN   string
	Title  string
	Author string
}

func weekPage(t *testing.T, date, previous string, books ...feedBook) *http.Response {
	t.Helper()
	entries := make([]map[string]any, len(books))
	for i, b := range books {
		entries[i] = map[string]any{
			"primary_isbn13": b.ISBN,
			"title":          b.Title,
			"author":         b.Author,
			"book_image":     "https://img.test/" + b.ISBN + ".jpg",
		}
	}
	body := map[string]any{
		"results": map[string]any{
			"bestsellers_date":        date,
			"previous_published_date": previous,
			"lists": []map[string]any{
				{"list_name": "Hardcover Fiction", "books": entries},
			},
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(data)),
	}
}

func newTestImporter(t *testing.T, store *shelfstore.Store, handler roundTripFunc) *Importer {
	t.Helper()
	config := DefaultConfig("https://feed.test/overview.json", "test-key")
	config.Delay = 0
	imp := NewImporter(store, config)
	imp.HTTP = &http.Client{Transport: handler}
	return imp
}

func TestImporterWalksWeeksBackwards(t *testing.T) {
	store := newImportStore(t)
	var dates []string
	imp := newTestImporter(t, store, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "test-key", req.URL.Query().Get("api-key"))
		date := req.URL.Query().Get("published_date")
		dates = append(dates, date)
		switch date {
		case "": // current week
			return weekPage(t, "2026-08-22", "2026-08-15",
				feedBook{ISBN: "9780000000001", Title: "First", Author: "A"}), nil
		case "2026-08-15":
			return weekPage(t, "2026-08-15", "",
				feedBook{ISBN: "9780000000002", Title: "Second", Author: "B"}), nil
		}
		t.Fatalf("unexpected published_date %q", date)
		return nil, nil
	})

	summary, err := imp.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"", "2026-08-15"}, dates)
	require.Equal(t, 2, summary.WeeksFetched)
	require.Equal(t, 2, summary.BooksCreated)

	b, err := store.BookByISBN(context.Background(), "9780000000002")
	require.NoError(t, err)
	require.Equal(t, "Second", b.Title)
	require.True(t, b.IsPendingSync, "imported books sync like user-created ones")
	require.Equal(t, []string{"Hardcover Fiction"}, b.Genres)
}

func TestImporterDeduplicatesByISBN(t *testing.T) {
	store := newImportStore(t)
	require.NoError(t, store.CreateBook(context.Background(),
		&shelfstore.Book{Title: "Already Here", ISBN: "9780000000001"}))

	imp := newTestImporter(t, store, func(req *http.Request) (*http.Response, error) {
		return weekPage(t, "2026-08-22", "",
			feedBook{ISBN: "9780000000001", Title: "Duplicate", Author: "A"},
			feedBook{ISBN: "9780000000003", Title: "New", Author: "C"}), nil
	})

	summary, err := imp.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.BooksCreated)
	require.Equal(t, 1, summary.Skipped)

	books, err := store.ListBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 2)
}

func TestImporterStopsAtMaxWeeks(t *testing.T) {
	store := newImportStore(t)
	calls := 0
	imp := newTestImporter(t, store, func(req *http.Request) (*http.Response, error) {
		calls++
		// Every week points at yet another previous week.
		return weekPage(t, "2026-08-22", "2026-08-15"), nil
	})
	imp.config.MaxWeeks = 3

	summary, err := imp.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 3, summary.WeeksFetched)
}

func TestImporterSkipsInvalidEntries(t *testing.T) {
	store := newImportStore(t)
	imp := newTestImporter(t, store, func(req *http.Request) (*http.Response, error) {
		return weekPage(t, "2026-08-22", "",
			feedBook{ISBN: "9780000000004"}, // no title, fails validation
			feedBook{ISBN: "9780000000005", Title: "Fine", Author: "E"}), nil
	})

	summary, err := imp.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.BooksCreated)
	require.Equal(t, 1, summary.Skipped)
}
