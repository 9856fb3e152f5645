package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/alem-hub/training-planner/internal/domain/shared"
)

// classify maps a driver error onto a build failure kind.
// Errors that already carry a kind pass through unchanged.
func classify(op string, err error) error {
	if err == nil || shared.KindOf(err) != nil {
		return err
	}
	if shared.IsContextError(err) {
		return shared.WrapError("sqlite", op, shared.ErrTimeout, "deadline exceeded", err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrConstraint:
			return shared.WrapError("sqlite", op, shared.ErrPersistenceConflict, "write conflict", err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB:
			return shared.WrapError("sqlite", op, shared.ErrTransportFailure, "database unavailable", err)
		}
	}
	return shared.WrapError("sqlite", op, shared.ErrPersistenceConflict, "statement failed", err)
}
