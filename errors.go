package migrator

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrConfiguration marks an invalid migration source. It is raised at load time and
	// never reaches the runner.
	ErrConfiguration = errors.New("invalid migration configuration")
	ErrNotFound      = errors.New("migration not found")
	// ErrPlanning marks a plan that was rejected before any migration ran.
	ErrPlanning       = errors.New("migration plan rejected")
	ErrIrreversible   = errors.New("migration is irreversible")
	ErrOutOfOrder     = errors.New("pending migration is older than an applied one")
	ErrLockContention = errors.New("migration lock is held by another runner")

	ErrHasForthcomingMigrations = errors.New("found pending migrations, consider migrating")
	ErrHasUnknownMigrations     = errors.New("found applied migrations missing from the source")
	ErrChecksumMismatch         = errors.New("applied migration checksum differs from the source")
)

// ExecutionError reports a migration that failed while running. For transactional
// migrations the transaction was rolled back and nothing from the migration persisted.
type ExecutionError struct {
	MigrationID string
	Direction   Direction
	// Step is the index of the failing step, or -1 when the ledger write or commit failed.
	Step             int
	NonTransactional bool
	Err              error
}

func (e *ExecutionError) Error() string {
	where := "ledger/commit"
	if e.Step >= 0 {
		where = fmt.Sprintf("step %d", e.Step+1)
	}
	msg := fmt.Sprintf("migration %s (%s) failed at %s: %v", e.MigrationID, e.Direction, where, e.Err)
	if e.NonTransactional {
		msg += " (non-transactional, may be partially applied)"
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SQLState returns the postgres error code of the underlying failure, if any.
func (e *ExecutionError) SQLState() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
