package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/training-planner/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// IsUniqueViolation checks if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

// IsSerializationFailure checks if the transaction lost a serialization race
// or was picked as a deadlock victim.
func IsSerializationFailure(err error) bool {
	code := pgCode(err)
	return code == "40001" || code == "40P01"
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify maps a driver error onto a build failure kind.
// Errors that already carry a kind pass through unchanged.
func classify(op string, err error) error {
	if err == nil || shared.KindOf(err) != nil {
		return err
	}
	if shared.IsContextError(err) || pgconn.Timeout(err) {
		return shared.WrapError("postgres", op, shared.ErrTimeout, "deadline exceeded", err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.Is(err, ErrConnectionClosed) {
		return shared.WrapError("postgres", op, shared.ErrTransportFailure, "database unreachable", err)
	}

	code := pgCode(err)
	switch {
	case code == "":
		return shared.WrapError("postgres", op, shared.ErrTransportFailure, "driver error", err)
	case IsUniqueViolation(err), IsSerializationFailure(err), code == "55P03":
		return shared.WrapError("postgres", op, shared.ErrPersistenceConflict, "write conflict", err)
	case code == "57014":
		return shared.WrapError("postgres", op, shared.ErrTimeout, "statement canceled", err)
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P"), code == "53300":
		return shared.WrapError("postgres", op, shared.ErrTransportFailure, "connection lost", err)
	}
	return shared.WrapError("postgres", op, shared.ErrPersistenceConflict, "statement failed", err)
}
