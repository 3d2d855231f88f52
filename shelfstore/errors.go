// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist (or is tombstoned and
// the caller asked for live records only).
var ErrNotFound = errors.New("record not found")

// ValidationError rejects a malformed local mutation before any store write.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s.%s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Entity, e.Reason)
}

// TransactionError signals a store-level failure during a scoped write. The
// mutation was fully rolled back and the record is unchanged.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("write transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
