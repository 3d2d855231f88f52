// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfsync

import "fmt"

// NetworkError wraps a failed push/pull request. The whole batch is treated
// as not-yet-synced and no local state was changed for it.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerRejection records a single item of a batch that the remote rejected.
// Only that record stays pending; the rest of the batch is unaffected.
type ServerRejection struct {
	Table   string
	LocalID string
	Reason  string
	Message string
}

func (e *ServerRejection) Error() string {
	return fmt.Sprintf("server rejected %s.%s: %s (%s)", e.Table, e.LocalID, e.Reason, e.Message)
}
