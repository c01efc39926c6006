// Package sqlhint classifies SQL statements by prefix and guesses the
// affected table by pattern matching.
//
// This is deliberately a heuristic layer, not a parser. Table extraction
// looks for the first identifier after FROM, INTO or UPDATE and will
// misidentify the table in statements with subqueries or multiple clauses;
// callers that need correctness pass an explicit entity hint instead.
package sqlhint

import (
	"regexp"
	"strings"
)

// Modifying statement prefixes, matched case-insensitively after trimming.
var modifyingPrefixes = []string{
	"insert",
	"update",
	"delete",
	"create",
	"alter",
	"drop",
	"truncate",
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:from|into|update)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// IsModifying reports whether the statement begins with one of the mutating
// keywords. Everything else is treated as read-only.
func IsModifying(stmt string) bool {
	return Action(stmt) != "other"
}

// Action returns the matched mutating keyword in lower case, or "other" for
// read-only statements.
func Action(stmt string) string {
	s := strings.ToLower(strings.TrimSpace(stmt))
	for _, prefix := range modifyingPrefixes {
		if strings.HasPrefix(s, prefix) {
			return prefix
		}
	}
	return "other"
}

// Table returns a best-effort guess of the table the statement touches: the
// first identifier following FROM, INTO or UPDATE. Empty when no pattern
// matches.
func Table(stmt string) string {
	m := tablePattern.FindStringSubmatch(stmt)
	if m == nil {
		return ""
	}
	return m[1]
}
