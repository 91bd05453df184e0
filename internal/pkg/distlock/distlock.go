// Package distlock guards work that must have a single runner across
// processes, such as one scheduler tick per campaign.
package distlock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by WithLock when another holder owns the lock.
var ErrNotAcquired = errors.New("distlock: lock held by another runner")

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory builds a fresh lock for a key. Schedulers call it once per tick.
type Factory func(key string) DistLock

// NewFactory returns a Factory using the best available backend.
// If redisClient is non-nil, uses Redis (preferred for cross-host locking).
// Otherwise falls back to PostgreSQL advisory locks, and to process-local
// locks when there is no database either.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	return func(key string) DistLock {
		return NewLock(redisClient, db, key, ttl)
	}
}

// NewLock creates a distributed lock using the best available backend.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	switch {
	case redisClient != nil:
		return NewRedisLock(redisClient, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return NewLocalLock(key)
	}
}

// WithLock runs fn while holding lock. It returns ErrNotAcquired without
// calling fn when the lock is owned elsewhere. Release uses a fresh context
// so a cancelled ctx still frees the lock.
func WithLock(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) error {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}()
	return fn(ctx)
}

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
// pg_try_advisory_lock is session-scoped, so Acquire pins one pooled
// connection and Release unlocks on that same connection before returning
// it to the pool. The lock is also released if the connection drops.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the connection that took the lock and returns it to
// the pool. It is a no-op when the lock is not held.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		// Drop the session so the server frees the lock with it.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !released {
		return fmt.Errorf("advisory lock %d was not held by this session", l.lockID)
	}
	return nil
}

// localLocks holds the keys taken by LocalLock in this process.
var localLocks sync.Map

// LocalLock is a process-local DistLock for single-process deployments with
// neither Redis nor Postgres. It only excludes holders in the same process.
type LocalLock struct {
	key  string
	held bool
}

// NewLocalLock creates a process-local lock for key.
func NewLocalLock(key string) *LocalLock {
	return &LocalLock{key: key}
}

// Acquire takes the key if no other LocalLock in the process holds it.
func (l *LocalLock) Acquire(context.Context) (bool, error) {
	if l.held {
		return false, nil
	}
	if _, loaded := localLocks.LoadOrStore(l.key, l); loaded {
		return false, nil
	}
	l.held = true
	return true, nil
}

// Release frees the key if this lock holds it.
func (l *LocalLock) Release(context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	localLocks.CompareAndDelete(l.key, l)
	return nil
}
