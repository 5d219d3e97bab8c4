package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MigrationManager applies and reverts migrations from a Source against one database.
// It assumes it is the only writer of the schema for the duration of a batch; the Locker
// enforces that between runners.
type MigrationManager struct {
	db     *gorm.DB
	source *Source
	ledger *Ledger
	logger logrus.FieldLogger

	ledgerTable  string
	locker       Locker
	lockKey      string
	lockAttempts int
	lockDelay    time.Duration
	now          func() time.Time
}

// NewMigrationsManager creates the migration facade for db. Without WithLocker, postgres
// databases get an advisory lock and everything else the process-wide local lock, shared
// by every manager in the process.
func NewMigrationsManager(db *gorm.DB, source *Source, opts ...ManagerOption) (*MigrationManager, error) {
	if db == nil {
		return nil, errors.New("migrations manager: nil database")
	}
	if source == nil {
		return nil, fmt.Errorf("%w: nil migration source", ErrConfiguration)
	}

	manager := MigrationManager{
		db:           db,
		source:       source,
		logger:       logrus.StandardLogger(),
		ledgerTable:  DefaultLedgerTable,
		lockKey:      DefaultLockKey,
		lockAttempts: 1,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(&manager)
	}

	if manager.locker == nil {
		if db.Dialector.Name() == "postgres" {
			manager.locker = NewPostgresLock(db)
		} else {
			manager.locker = processLock
		}
	}
	manager.ledger = NewLedger(db, manager.ledgerTable)

	return &manager, nil
}

func (m *MigrationManager) Source() *Source {
	return m.source
}

func (m *MigrationManager) Ledger() *Ledger {
	return m.ledger
}

// PlanUp computes, without side effects, the migrations Migrate would apply.
func (m *MigrationManager) PlanUp(ctx context.Context, target string) (Plan, error) {
	applied, err := m.ledger.ListApplied(ctx)
	if err != nil {
		return Plan{}, err
	}
	return planUp(m.source.ListAll(), applied, target)
}

// PlanDown computes, without side effects, the migrations Downgrade would revert.
func (m *MigrationManager) PlanDown(ctx context.Context, target string) (Plan, error) {
	applied, err := m.ledger.ListApplied(ctx)
	if err != nil {
		return Plan{}, err
	}
	return planDown(m.source.ListAll(), applied, target)
}

// CheckFulfillment reports whether the database matches the source exactly: nothing
// pending, nothing applied that the source does not know, and no checksum drift.
func (m *MigrationManager) CheckFulfillment(ctx context.Context) (reasonErr error, ok bool, err error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, false, err
	}

	for _, s := range statuses {
		if s.State == StatePending {
			return ErrHasForthcomingMigrations, false, nil
		}
	}
	for _, s := range statuses {
		if s.State == StateUnknown {
			return ErrHasUnknownMigrations, false, nil
		}
	}
	for _, s := range statuses {
		if s.ChecksumMismatch {
			return ErrChecksumMismatch, false, nil
		}
	}

	return nil, true, nil
}

func (m *MigrationManager) acquireLock(ctx context.Context) (func(), error) {
	delay := m.lockDelay
	for attempt := 1; ; attempt++ {
		release, err := m.locker.Acquire(ctx, m.lockKey)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrLockContention) || attempt >= m.lockAttempts {
			return nil, err
		}

		m.logger.WithError(err).Warnf("migration lock busy, retrying in %s (attempt %d/%d)", delay, attempt, m.lockAttempts)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting for migration lock: %w", ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
}
