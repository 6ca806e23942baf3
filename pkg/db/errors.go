package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation = "23505"
	pgDuplicateText   = "duplicate key value"
	sqliteUniqueText  = "UNIQUE constraint failed"
	sqliteIndexMarker = "index '"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. Postgres errors are matched on SQLSTATE 23505 or the
// "duplicate key value" text, sqlite on "UNIQUE constraint failed". When
// constraintName is provided, the constraint (or index) name must also appear.
//
// sqlite only names the index for expression indexes; column indexes report
// "table.column" pairs instead, so those match any constraintName.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, pgDuplicateText):
		return constraintName == "" || strings.Contains(msg, constraintName)
	case strings.Contains(msg, sqliteUniqueText):
		if constraintName == "" || !strings.Contains(msg, sqliteIndexMarker) {
			return true
		}
		return strings.Contains(msg, sqliteIndexMarker+constraintName+"'")
	}
	return false
}
