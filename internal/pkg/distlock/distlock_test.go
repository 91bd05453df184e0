package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_ExclusiveUntilReleased(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:c1", time.Minute)
	b := NewRedisLock(client, "campaign:c1", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// b does not own the lock, so its release is a no-op
	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "k", time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	b := NewRedisLock(client, "k", time.Second)
	ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Extend(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "k", time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)
	require.NoError(t, a.Extend(ctx, 10*time.Second))

	mr.FastForward(5 * time.Second)
	assert.True(t, mr.Exists(a.Key()))
}

func TestWithLock(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	factory := NewFactory(client, nil, time.Minute)

	calls := 0
	err := WithLock(ctx, factory("tick"), func(ctx context.Context) error {
		calls++
		// nested attempt on the same key is refused
		inner := WithLock(ctx, factory("tick"), func(context.Context) error {
			calls++
			return nil
		})
		assert.True(t, errors.Is(inner, ErrNotAcquired))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// released after WithLock returns
	ok, err := factory("tick").Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewLock_FallsBackToProcessLocal(t *testing.T) {
	ctx := context.Background()
	factory := NewFactory(nil, nil, time.Minute)
	_, isLocal := factory("local:tick").(*LocalLock)
	require.True(t, isLocal)

	calls := 0
	err := WithLock(ctx, factory("local:tick"), func(ctx context.Context) error {
		calls++
		inner := WithLock(ctx, factory("local:tick"), func(context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, inner, ErrNotAcquired)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	other := factory("local:tick")
	ok, err := other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "released after WithLock returns")
	require.NoError(t, other.Release(ctx))
}

func TestLocalLock_ReleaseByNonHolderIsNoop(t *testing.T) {
	ctx := context.Background()
	a := NewLocalLock("local:k")
	b := NewLocalLock("local:k")

	ok, _ := a.Acquire(ctx)
	require.True(t, ok)
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok, "b never held the key")

	require.NoError(t, a.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}

func TestPGAdvisoryLock_UnlocksOnAcquiringConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	lock := NewPGAdvisoryLock(db, "outreach:escalation:alpha")

	mock.ExpectQuery("SELECT pg_try_advisory_lock\\(\\$1\\)").WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, db.Stats().InUse, "session stays pinned while the lock is held")

	mock.ExpectQuery("SELECT pg_advisory_unlock\\(\\$1\\)").WithArgs(lock.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, 0, db.Stats().InUse)

	require.NoError(t, lock.Release(ctx), "second release is a no-op")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_NotAcquiredReturnsConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	lock := NewPGAdvisoryLock(db, "outreach:escalation:alpha")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))
	err = WithLock(ctx, lock, func(context.Context) error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.Equal(t, 0, db.Stats().InUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_UnlockNotHeldIsAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	lock := NewPGAdvisoryLock(db, "k")

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	ok, _ := lock.Acquire(ctx)
	require.True(t, ok)

	mock.ExpectQuery("SELECT pg_advisory_unlock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(false))
	assert.Error(t, lock.Release(ctx))
	assert.Equal(t, 0, db.Stats().InUse)
	require.NoError(t, mock.ExpectationsWereMet())
}
