package db

import (
	"regexp"
	"strings"
)

var onConflictClause = regexp.MustCompile(`\s*ON CONFLICT \([^)]*\) DO NOTHING`)

// IdempotentInsertSQL adapts an INSERT ... ON CONFLICT (...) DO NOTHING
// statement to the target dialect. postgres and sqlite take the clause
// as written; mysql has no ON CONFLICT, so the statement becomes
// INSERT IGNORE and deduplication falls to the same unique index.
func IdempotentInsertSQL(dialect, query string) string {
	if dialect != "mysql" {
		return query
	}
	query = onConflictClause.ReplaceAllString(query, "")
	return strings.Replace(query, "INSERT INTO", "INSERT IGNORE INTO", 1)
}
