package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/doctracker/internal/database/testutil"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*DatabaseStore, *fakeClock) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := NewDatabaseStore(db)
	store.now = clock.Now
	return store, clock
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, store.Set(ctx, "k", []byte("v2"), time.Minute))

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v2"), value)

	clock.Advance(2 * time.Minute)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found, "expired entries are not returned")

	require.NoError(t, store.Set(ctx, "forever", []byte("x"), 0))
	clock.Advance(24 * time.Hour)
	_, found, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, store.Delete(ctx, "forever", "unknown"))
	_, found, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.Equal(t, 40*time.Second, ttl)

	clock.Advance(time.Minute)
	count, _, err = store.IncrementWithTTL(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "window resets after expiry")
}

func TestDatabaseStoreSetNX(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err = store.SetNX(ctx, "lock", []byte("c"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired entries can be claimed")

	value, _, err := store.Get(ctx, "lock")
	require.NoError(t, err)
	require.Equal(t, []byte("c"), value)
}

func TestDatabaseStoreCompareAndDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "lock", []byte("mine"), time.Minute))

	deleted, err := store.CompareAndDelete(ctx, "lock", []byte("theirs"))
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = store.CompareAndDelete(ctx, "lock", []byte("mine"))
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.CompareAndDelete(ctx, "lock", []byte("mine"))
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))

	clock.Advance(time.Minute)
	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	require.NoError(t, store.Ping(ctx))
}

func TestLockAcquireRelease(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	lock, err := AcquireLock(ctx, store, "reminders:run", time.Minute)
	require.NoError(t, err)

	_, err = AcquireLock(ctx, store, "reminders:run", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Release(ctx))

	again, err := AcquireLock(ctx, store, "reminders:run", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))

	var nilLock *Lock
	require.NoError(t, nilLock.Release(ctx))
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
}
