// Package bigquery owns the BigQuery native type representation: column
// names, the BigQuery JSON schema format, and the import/export SQL
// that moves interchange CSV in and out of BigQuery tables.
package bigquery

import (
	"fmt"
	"strings"
)

// A ColumnName is a BigQuery column name. It preserves the original
// case but ignores it for comparison, the way BigQuery does: a column
// named Column1 is identical to one named column1, and duplicates that
// differ only in case are rejected.
//
// Per the official docs, a column name may contain only ASCII letters,
// digits and underscores, must start with a letter or underscore, and
// may not use the reserved _TABLE_, _FILE_ or _PARTITION prefixes.
type ColumnName struct {
	orig  string
	lower string
}

// NewColumnName validates and builds a ColumnName.
func NewColumnName(s string) (ColumnName, error) {
	if s == "" {
		return ColumnName{}, fmt.Errorf("bigquery: column name must not be empty")
	}
	if len(s) > 128 {
		return ColumnName{}, fmt.Errorf("bigquery: column name %q is longer than 128 characters", s)
	}
	for i, c := range s {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9':
			if i == 0 {
				return ColumnName{}, fmt.Errorf("bigquery: column name %q must start with an underscore or an ASCII letter", s)
			}
		default:
			return ColumnName{}, fmt.Errorf("bigquery: column name %q must contain only underscores, ASCII letters, or ASCII digits", s)
		}
	}
	lower := strings.ToLower(s)
	for _, prefix := range []string{"_table_", "_file_", "_partition"} {
		if strings.HasPrefix(lower, prefix) {
			return ColumnName{}, fmt.Errorf("bigquery: column name %q uses a reserved prefix", s)
		}
	}
	return ColumnName{orig: s, lower: lower}, nil
}

// String returns the original, case-preserving name.
func (n ColumnName) String() string { return n.orig }

// Equal ignores case, the way BigQuery compares column names.
func (n ColumnName) Equal(other ColumnName) bool { return n.lower == other.lower }

// Quoted renders the name for use in SQL.
func (n ColumnName) Quoted() string { return "`" + n.orig + "`" }

// JavaScriptQuoted renders the name as a JavaScript string literal for
// use in import UDFs.
func (n ColumnName) JavaScriptQuoted() string {
	// Column names are restricted to ASCII identifier characters, so no
	// escaping is required.
	return `"` + n.orig + `"`
}

// CheckDuplicateColumnNames rejects names that BigQuery would consider
// duplicates even though their case differs.
func CheckDuplicateColumnNames(names []ColumnName) error {
	seen := make(map[string]string, len(names))
	for _, n := range names {
		if prev, ok := seen[n.lower]; ok {
			return fmt.Errorf("bigquery: duplicate column names %q and %q (BigQuery ignores case)", prev, n.orig)
		}
		seen[n.lower] = n.orig
	}
	return nil
}
