// Package sqlutil provides dialect-aware SQL helpers for the proxy database.
package sqlutil

import (
	"regexp"
	"strings"
)

// Dialect selects identifier quoting and catalog queries for a database driver.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// DialectFor maps a configured driver name to its dialect. Unknown names
// fall back to MySQL, the default proxy backend.
func DialectFor(driver string) Dialect {
	if driver == string(SQLite) {
		return SQLite
	}
	return MySQL
}

// Quote quotes an identifier (table or column name) for the dialect,
// doubling any embedded quote character.
// Example: MySQL.Quote("proxy_history") -> "`proxy_history`"
// Example: SQLite.Quote("proxy_history") -> "\"proxy_history\""
func (d Dialect) Quote(name string) string {
	q := "`"
	if d == SQLite {
		q = `"`
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// TablesQuery returns a query listing the tables of the current schema,
// one name per row.
func (d Dialect) TablesQuery() string {
	if d == SQLite {
		return "SELECT name FROM sqlite_master WHERE type = 'table'"
	}
	return "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE()"
}

// validIdentifierRegex restricts identifiers to alphanumerics and underscore.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier checks if a name only contains alphanumeric characters and underscores.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// QuoteSafe quotes an identifier after validating it.
func (d Dialect) QuoteSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return d.Quote(name), nil
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}
