// Package catalog imports books from an external weekly bestseller overview
// feed into the local store. Imported books are ordinary locally-owned
// records: they start pending sync and flow to the server on the next
// reconciliation pass like any user-created book.
// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sabristratos/athneaeum-sub005/shelfstore"
)

// Config controls the importer's reach and politeness.
type Config struct {
	BaseURL  string        // overview feed endpoint
	APIKey   string        // feed credential
	MaxWeeks int           // how many additional weeks to walk backwards
	Delay    time.Duration // pause between week fetches
}

// DefaultConfig returns importer defaults matching the feed's rate limits.
func DefaultConfig(baseURL, apiKey string) *Config {
	return &Config{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		MaxWeeks: 52,
		Delay:    6 * time.Second,
	}
}

// Importer walks the feed week by week, backwards in time, creating a local
// Book for every ISBN not yet in the store.
type Importer struct {
	store  *shelfstore.Store
	config *Config
	HTTP   *http.Client
	logger *slog.Logger
}

// NewImporter wires an importer to the local store.
func NewImporter(store *shelfstore.Store, config *Config) *Importer {
	return &Importer{
		store:  store,
		config: config,
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (imp *Importer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		imp.logger = logger
	}
}

// overview mirrors the feed's response shape.
type overview struct {
	Results struct {
		BestsellersDate       string `json:"bestsellers_date"`
		PreviousPublishedDate string `json:"previous_published_date"`
		Lists                 []struct {
			ListName string `json:"list_name"`
			Books    []struct {
				PrimaryISBN13 string `json:"primary_isbn13"`
				Title         string `json:"title"`
				Author        string `json:"author"`
				BookImage     string `json:"book_image"`
			} `json:"books"`
		} `json:"lists"`
	} `json:"results"`
}

// Summary reports what one import run did.
type Summary struct {
	WeeksFetched int
	BooksCreated int
	Skipped      int // ISBNs already present locally
}

// Run walks up to MaxWeeks weeks backwards from the current week (the feed
// hands back a previous-week pointer with each page) and creates books for
// unseen ISBNs. Deduplication is by ISBN against the local store, so re-runs
// and overlapping weeks are safe. Stops cleanly when ctx is canceled.
func (imp *Importer) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	nextDate := "" // empty means current week

	for summary.WeeksFetched < imp.config.MaxWeeks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		page, err := imp.fetchOverview(ctx, nextDate)
		if err != nil {
			return summary, err
		}
		summary.WeeksFetched++

		if err := imp.processWeek(ctx, page, summary); err != nil {
			return summary, err
		}

		nextDate = page.Results.PreviousPublishedDate
		if nextDate == "" {
			imp.logger.Info("reached the beginning of the feed",
				"weeks", summary.WeeksFetched)
			break
		}

		if summary.WeeksFetched < imp.config.MaxWeeks {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(imp.config.Delay):
			}
		}
	}

	imp.logger.Info("catalog import finished",
		"weeks", summary.WeeksFetched, "created", summary.BooksCreated, "skipped", summary.Skipped)
	return summary, nil
}

func (imp *Importer) fetchOverview(ctx context.Context, publishedDate string) (*overview, error) {
	q := url.Values{}
	q.Set("api-key", imp.config.APIKey)
	if publishedDate != "" {
		q.Set("published_date", publishedDate)
	}
	reqURL := imp.config.BaseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := imp.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var page overview
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}
	return &page, nil
}

func (imp *Importer) processWeek(ctx context.Context, page *overview, summary *Summary) error {
	created := 0
	for _, list := range page.Results.Lists {
		for _, entry := range list.Books {
			if entry.PrimaryISBN13 == "" {
				continue
			}

			_, err := imp.store.BookByISBN(ctx, entry.PrimaryISBN13)
			if err == nil {
				summary.Skipped++
				continue
			}
			if !errors.Is(err, shelfstore.ErrNotFound) {
				return err
			}

			book := &shelfstore.Book{
				Title:     entry.Title,
				Author:    entry.Author,
				ISBN:      entry.PrimaryISBN13,
				CatalogID: entry.PrimaryISBN13,
				CoverURL:  entry.BookImage,
				Genres:    []string{list.ListName},
			}
			if err := imp.store.CreateBook(ctx, book); err != nil {
				// A malformed feed entry should not abort the whole run.
				var verr *shelfstore.ValidationError
				if errors.As(err, &verr) {
					imp.logger.Warn("skipping invalid feed entry",
						"isbn", entry.PrimaryISBN13, "err", err)
					summary.Skipped++
					continue
				}
				return err
			}
			created++
		}
	}

	summary.BooksCreated += created
	imp.logger.Debug("imported week",
		"bestsellers_date", page.Results.BestsellersDate, "new_books", created)
	return nil
}
