// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SyncMeta carries the sync-control fields shared by every entity row.
type SyncMeta struct {
	ID            string `json:"id"`
	ServerID      *int64 `json:"server_id,omitempty"`
	IsPendingSync bool   `json:"is_pending_sync"`
	IsDeleted     bool   `json:"is_deleted"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Book is a locally-owned catalog entry.
type Book struct {
	SyncMeta
	Title        string   `json:"title" validate:"required"`
	Author       string   `json:"author"`
	ISBN         string   `json:"isbn"`
	CatalogID    string   `json:"catalog_id"`
	CoverURL     string   `json:"cover_url"`
	Genres       []string `json:"genres"`
	PageCount    int      `json:"page_count" validate:"gte=0"`
	SeriesID     *string  `json:"series_id,omitempty"`
	VolumeNumber int      `json:"volume_number" validate:"gte=0"`
}

// Series groups books under one local parent identifier.
type Series struct {
	SyncMeta
	Title        string `json:"title" validate:"required"`
	Author       string `json:"author"`
	TotalVolumes int    `json:"total_volumes" validate:"gte=0"`
	Completed    bool   `json:"completed"`
}

// UserBook reading statuses.
const (
	StatusWant     = "want"
	StatusReading  = "reading"
	StatusFinished = "finished"
)

// UserBook tracks the user's relationship to a book.
type UserBook struct {
	SyncMeta
	BookID      string `json:"book_id" validate:"required"`
	Status      string `json:"status" validate:"oneof=want reading finished"`
	Rating      int    `json:"rating" validate:"gte=0,lte=5"`
	CurrentPage int    `json:"current_page" validate:"gte=0"`
}

// ReadingSession is a single timed reading entry against a book.
type ReadingSession struct {
	SyncMeta
	BookID          string    `json:"book_id" validate:"required"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0"`
	PagesRead       int       `json:"pages_read" validate:"gte=0"`
}

// UserPreference categories and types.
const (
	CategoryAuthor = "author"
	CategoryGenre  = "genre"
	CategorySeries = "series"

	PrefFavorite = "favorite"
	PrefExclude  = "exclude"
)

// UserPreference is a favorite/exclude rule over authors, genres or series.
// Normalized is derived from Value and recomputed on every value change; it
// is what duplicate detection compares, so case and whitespace differences
// never produce two rules.
type UserPreference struct {
	SyncMeta
	Category   string `json:"category" validate:"oneof=author genre series"`
	Type       string `json:"type" validate:"oneof=favorite exclude"`
	Value      string `json:"value" validate:"required"`
	Normalized string `json:"normalized"`
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(id string, serverID sql.NullInt64, pending, deleted int, createdAt, updatedAt string) (SyncMeta, error) {
	meta := SyncMeta{
		ID:            id,
		IsPendingSync: pending != 0,
		IsDeleted:     deleted != 0,
	}
	if serverID.Valid {
		v := serverID.Int64
		meta.ServerID = &v
	}
	var err error
	if meta.CreatedAt, err = parseTime(createdAt); err != nil {
		return meta, err
	}
	if meta.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return meta, err
	}
	return meta, nil
}

func scanBook(sc rowScanner) (*Book, error) {
	var (
		b                  Book
		serverID           sql.NullInt64
		genres             string
		seriesID           sql.NullString
		pending, deleted   int
		createdAt, updated string
	)
	err := sc.Scan(&b.ID, &serverID, &b.Title, &b.Author, &b.ISBN, &b.CatalogID,
		&b.CoverURL, &genres, &b.PageCount, &seriesID, &b.VolumeNumber,
		&pending, &deleted, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if b.SyncMeta, err = scanMeta(b.ID, serverID, pending, deleted, createdAt, updated); err != nil {
		return nil, err
	}
	if seriesID.Valid {
		v := seriesID.String
		b.SeriesID = &v
	}
	if err := json.Unmarshal([]byte(genres), &b.Genres); err != nil {
		return nil, fmt.Errorf("failed to decode genre list for book %s: %w", b.ID, err)
	}
	return &b, nil
}

func scanSeries(sc rowScanner) (*Series, error) {
	var (
		se                 Series
		serverID           sql.NullInt64
		completed          int
		pending, deleted   int
		createdAt, updated string
	)
	err := sc.Scan(&se.ID, &serverID, &se.Title, &se.Author, &se.TotalVolumes,
		&completed, &pending, &deleted, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if se.SyncMeta, err = scanMeta(se.ID, serverID, pending, deleted, createdAt, updated); err != nil {
		return nil, err
	}
	se.Completed = completed != 0
	return &se, nil
}

func scanUserBook(sc rowScanner) (*UserBook, error) {
	var (
		ub                 UserBook
		serverID           sql.NullInt64
		pending, deleted   int
		createdAt, updated string
	)
	err := sc.Scan(&ub.ID, &serverID, &ub.BookID, &ub.Status, &ub.Rating,
		&ub.CurrentPage, &pending, &deleted, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if ub.SyncMeta, err = scanMeta(ub.ID, serverID, pending, deleted, createdAt, updated); err != nil {
		return nil, err
	}
	return &ub, nil
}

func scanReadingSession(sc rowScanner) (*ReadingSession, error) {
	var (
		rs                 ReadingSession
		serverID           sql.NullInt64
		startedAt          string
		pending, deleted   int
		createdAt, updated string
	)
	err := sc.Scan(&rs.ID, &serverID, &rs.BookID, &startedAt, &rs.DurationMinutes,
		&rs.PagesRead, &pending, &deleted, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if rs.SyncMeta, err = scanMeta(rs.ID, serverID, pending, deleted, createdAt, updated); err != nil {
		return nil, err
	}
	if rs.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	return &rs, nil
}

func scanUserPreference(sc rowScanner) (*UserPreference, error) {
	var (
		p                  UserPreference
		serverID           sql.NullInt64
		pending, deleted   int
		createdAt, updated string
	)
	err := sc.Scan(&p.ID, &serverID, &p.Category, &p.Type, &p.Value,
		&p.Normalized, &pending, &deleted, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if p.SyncMeta, err = scanMeta(p.ID, serverID, pending, deleted, createdAt, updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableServerID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func marshalGenres(genres []string) (string, error) {
	if genres == nil {
		genres = []string{}
	}
	data, err := json.Marshal(genres)
	if err != nil {
		return "", fmt.Errorf("failed to encode genre list: %w", err)
	}
	return string(data), nil
}
