// Package normalize canonicalizes user-entered preference values so that
// duplicate detection is insensitive to case and whitespace.
// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package normalize

import "strings"

// Value lowercases s and collapses all runs of whitespace to single spaces,
// trimming the ends. It is a pure function: the same input always yields the
// same output, so it can be recomputed on every write.
//
//	Value("Fantasy") == Value(" fantasy ") == "fantasy"
func Value(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
