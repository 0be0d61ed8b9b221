// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"github.com/tphakala/logbook/internal/errors"
)

// mysqlErrNoSuchTable is ER_NO_SUCH_TABLE.
const mysqlErrNoSuchTable = 1146

// ErrTableMissing marks errors caused by a table that has not been
// provisioned. Match it with errors.Is.
var ErrTableMissing = errors.NewStd("table does not exist")

// IsTableMissing reports whether err means the target table does not exist.
func IsTableMissing(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTableMissing) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrError && strings.Contains(sqliteErr.Error(), "no such table")
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrNoSuchTable
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "table") && strings.Contains(msg, "doesn't exist"))
}

// dbError creates a categorized database error with context. Missing-table
// errors additionally match ErrTableMissing.
func dbError(err error, operation, table string) error {
	if err == nil {
		return nil
	}
	if IsTableMissing(err) && !errors.Is(err, ErrTableMissing) {
		err = fmt.Errorf("%w: %w", ErrTableMissing, err)
	}

	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("table", table)
	if isConnectionError(err) {
		builder = builder.Priority(errors.PriorityHigh)
	}
	return builder.Build()
}

// validationError creates a validation error for rejected input.
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// isConnectionError reports errors that indicate the database itself is
// unreachable rather than a bad statement.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "bad connection") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "unable to open database")
}
