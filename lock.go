package migrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"gorm.io/gorm"
)

const DefaultLockKey = "schema_migrator"

// Locker grants exclusive migration authority over a store for the duration of a batch.
// Acquire returns ErrLockContention when another runner holds the lock; callers may retry.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// PostgresLock uses a session-level advisory lock held on a dedicated connection, so the
// lock covers transactional and non-transactional steps alike.
type PostgresLock struct {
	db *gorm.DB
}

func NewPostgresLock(db *gorm.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := hashLockKey(key)

	sqlDB, err := l.db.DB()
	if err != nil {
		return nil, fmt.Errorf("advisory lock %d: %w", lockID, err)
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock %d: reserve connection: %w", lockID, err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pg_try_advisory_lock(%d): %w", lockID, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: advisory lock %d (%s)", ErrLockContention, lockID, key)
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		_ = conn.Close()
	}
	return release, nil
}

// LocalLock serializes runners inside one process. It suits sqlite, which is single-writer
// and guarded across processes by its own file locking.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]bool)}
}

// processLock is the default Locker for databases without advisory locks.
var processLock = NewLocalLock()

func (l *LocalLock) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire local lock: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, fmt.Errorf("%w: %s", ErrLockContention, key)
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// hashLockKey maps a lock key onto the int64 space of pg advisory locks.
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	// fnv never returns an error from Write
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
