package migrator

import (
	"time"

	"github.com/sirupsen/logrus"
)

type ManagerOption func(*MigrationManager)

func WithLogger(logger logrus.FieldLogger) ManagerOption {
	return func(m *MigrationManager) {
		m.logger = logger
	}
}

// WithLedgerTable overrides the ledger table name (default schema_migrations).
func WithLedgerTable(table string) ManagerOption {
	return func(m *MigrationManager) {
		m.ledgerTable = table
	}
}

// WithLocker replaces the lock chosen from the database dialect.
func WithLocker(locker Locker) ManagerOption {
	return func(m *MigrationManager) {
		m.locker = locker
	}
}

func WithLockKey(key string) ManagerOption {
	return func(m *MigrationManager) {
		m.lockKey = key
	}
}

// WithLockRetry retries a contended lock up to attempts times in total, doubling delay
// after each failed attempt.
func WithLockRetry(attempts int, delay time.Duration) ManagerOption {
	return func(m *MigrationManager) {
		if attempts < 1 {
			attempts = 1
		}
		m.lockAttempts = attempts
		m.lockDelay = delay
	}
}

// WithClock sets the time source for ledger timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *MigrationManager) {
		m.now = now
	}
}
