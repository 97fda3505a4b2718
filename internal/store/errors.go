package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/agentfleet/agentfleetd/internal/errs"
)

// wrapErr classifies a raw sqlite driver error into the typed taxonomy.
// UNIQUE/FOREIGN KEY/CHECK constraint violations become Conflict so callers
// can distinguish "bad request shape" from "something is actually broken".
func wrapErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return errs.WrapConflict(err, "%s", msg)
		}
	}
	return errs.Storage(err, "%s", msg)
}
