package migrator

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusAndFulfillment(t *testing.T) {
	db := newTestDB(t)
	createPlates(t, db)
	ctx := context.Background()

	manager := newTestManager(t, db,
		addColumnMigration(idAddRegion, "region_code"),
		addColumnMigration(idAddSuffix, "plate_suffix"),
	)

	statuses, err := manager.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, StatePending, statuses[0].State)

	reason, ok, err := manager.CheckFulfillment(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, reason, ErrHasForthcomingMigrations)

	_, err = manager.Migrate(ctx, "")
	require.NoError(t, err)

	reason, ok, err = manager.CheckFulfillment(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, reason)

	statuses, err = manager.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.Equal(t, StateApplied, s.State)
		assert.True(t, testClock.Equal(s.AppliedAt))
		assert.False(t, s.ChecksumMismatch)
	}

	require.NoError(t, db.Exec(`UPDATE schema_migrations SET checksum = 'tampered' WHERE migration_id = ?`, idAddSuffix).Error)
	reason, ok, err = manager.CheckFulfillment(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, reason, ErrChecksumMismatch)

	require.NoError(t, db.Exec(`INSERT INTO schema_migrations (migration_id, name, checksum, applied_at_utc) VALUES (?, 'gone', '', ?)`,
		"20230101000000_removed", testClock).Error)
	reason, ok, err = manager.CheckFulfillment(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, reason, ErrHasUnknownMigrations)

	statuses, err = manager.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "20230101000000_removed", statuses[0].ID)
	assert.Equal(t, StateUnknown, statuses[0].State)
	assert.True(t, statuses[2].ChecksumMismatch)
}

func TestDowngradeRejectsIrreversibleWithoutSideEffects(t *testing.T) {
	db := newTestDB(t)
	createPlates(t, db)
	ctx := context.Background()

	manager := newTestManager(t, db,
		addColumnMigration(idAddRegion, "region_code"),
		Migration{
			ID:         idIrreversed,
			Name:       "drop legacy rows",
			Up:         []Step{RawStatement{SQL: `DELETE FROM plates WHERE number = ''`}},
			DownPolicy: DownIrreversible,
		},
		addColumnMigration("20240106000000_add_colour", "colour"),
	)

	_, err := manager.Migrate(ctx, "")
	require.NoError(t, err)
	before := appliedIDs(t, manager)
	require.Len(t, before, 3)

	report, err := manager.Downgrade(ctx, TargetInitial)
	assert.ErrorIs(t, err, ErrIrreversible)
	assert.ErrorIs(t, err, ErrPlanning)
	assert.Equal(t, BatchFailed, report.State)
	assert.Empty(t, report.Completed)
	assert.Equal(t, before, appliedIDs(t, manager))
	assert.True(t, db.Migrator().HasColumn("plates", "colour"))

	_, err = manager.Downgrade(ctx, idIrreversed)
	require.NoError(t, err)
	assert.Equal(t, before[:2], appliedIDs(t, manager))
	assert.False(t, db.Migrator().HasColumn("plates", "colour"))

	_, err = manager.Downgrade(ctx, "")
	assert.ErrorIs(t, err, ErrPlanning)
}

func TestExecutionError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Message: `relation "companies" does not exist`}
	err := error(&ExecutionError{MigrationID: idAddRegion, Direction: DirectionUp, Step: 2, Err: pgErr})

	assert.Equal(t, "migration "+idAddRegion+" (up) failed at step 3: "+pgErr.Error(), err.Error())

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "42P01", execErr.SQLState())
	assert.ErrorIs(t, err, pgErr)

	ledgerErr := &ExecutionError{MigrationID: idAddRegion, Direction: DirectionDown, Step: -1, NonTransactional: true, Err: errors.New("boom")}
	assert.Equal(t, "migration "+idAddRegion+" (down) failed at ledger/commit: boom (non-transactional, may be partially applied)", ledgerErr.Error())
	assert.Empty(t, ledgerErr.SQLState())
}
