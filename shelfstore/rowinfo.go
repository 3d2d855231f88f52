// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ColumnInfo describes one column of an entity table.
type ColumnInfo struct {
	Name         string
	DeclaredType string
	IsPrimaryKey bool
	NotNull      bool
}

// TableInfo caches the structure of an entity table, discovered through
// PRAGMA table_info. Used to serialize rows generically for upload payloads.
type TableInfo struct {
	Table   string
	Columns []ColumnInfo
}

type tableInfoCache struct {
	mu    sync.RWMutex
	cache map[string]*TableInfo
}

var tableInfos = &tableInfoCache{cache: make(map[string]*TableInfo)}

func (c *tableInfoCache) get(db *sql.DB, table string) (*TableInfo, error) {
	key := strings.ToLower(table)

	c.mu.RLock()
	if info, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return info, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.cache[key]; ok {
		return info, nil
	}

	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", key))
	if err != nil {
		return nil, fmt.Errorf("failed to get table info for %s: %w", table, err)
	}
	defer rows.Close()

	info := &TableInfo{Table: key}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info row: %w", err)
		}
		info.Columns = append(info.Columns, ColumnInfo{
			Name:         name,
			DeclaredType: ctype,
			IsPrimaryKey: pk > 0,
			NotNull:      notNull != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table info for %s: %w", table, err)
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %q does not exist", table)
	}

	c.cache[key] = info
	return info, nil
}

// syncControlColumns are carried in the push envelope rather than the row
// payload and are owned by the sync layer, never by the server.
var syncControlColumns = map[string]bool{
	"id":              true,
	"server_id":       true,
	"is_pending_sync": true,
	"is_deleted":      true,
}

// SerializeRow loads one row by local id and serializes its business fields
// to a JSON payload for upload. Sync-control columns are excluded; the
// envelope already identifies the record.
func (s *Store) SerializeRow(ctx context.Context, table, id string) (json.RawMessage, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %q WHERE id = ?`, table), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read row %s.%s: %w", table, id, err)
		}
		return nil, ErrNotFound
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		name := strings.ToLower(col)
		if syncControlColumns[name] {
			continue
		}
		switch v := values[i].(type) {
		case nil:
			row[name] = nil
		case []byte:
			row[name] = string(v)
		default:
			row[name] = v
		}
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row to JSON: %w", err)
	}
	return json.RawMessage(data), nil
}
