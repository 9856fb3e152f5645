package neo4j

import (
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/alem-hub/training-planner/internal/domain/shared"
)

// classify maps a driver error onto a build failure kind.
// Errors that already carry a kind pass through unchanged.
func classify(op string, err error) error {
	if err == nil || shared.KindOf(err) != nil {
		return err
	}
	if shared.IsContextError(err) {
		return shared.WrapError("neo4j", op, shared.ErrTimeout, "deadline exceeded", err)
	}

	if isConnectivityError(err) || errors.Is(err, ErrConnectionClosed) {
		return shared.WrapError("neo4j", op, shared.ErrTransportFailure, "server unreachable", err)
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case strings.HasSuffix(neoErr.Code, ".TransactionTimedOut"):
			return shared.WrapError("neo4j", op, shared.ErrTimeout, "transaction timed out", err)
		case strings.HasPrefix(neoErr.Code, "Neo.TransientError."),
			strings.HasSuffix(neoErr.Code, ".ConstraintValidationFailed"):
			return shared.WrapError("neo4j", op, shared.ErrPersistenceConflict, "write conflict", err)
		case strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security."),
			strings.HasPrefix(neoErr.Code, "Neo.ClientError.Database."):
			return shared.WrapError("neo4j", op, shared.ErrTransportFailure, "server rejected session", err)
		}
		return shared.WrapError("neo4j", op, shared.ErrPersistenceConflict, "statement failed", err)
	}
	return shared.WrapError("neo4j", op, shared.ErrTransportFailure, "driver error", err)
}

// isConnectivityError walks the wrap chain; the driver only checks the
// outermost error.
func isConnectivityError(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if neo4j.IsConnectivityError(err) {
			return true
		}
	}
	return false
}
