package lockmgr

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/oKV/lib/db/engines/maple"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/ValentinKolb/oKV/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConn(t *testing.T) store.IConnection {
	t.Helper()
	database := maple.NewMapleDB(nil)
	conn := lstore.NewLocalConnection(database)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = database.Close()
	})
	return conn
}

func TestAcquireRelease(t *testing.T) {
	lm := NewLockManager(newConn(t))

	ok, owner, err := lm.AcquireLock("job", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, owner)

	ok, other, err := lm.AcquireLock("job", 0)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock cannot be acquired twice")
	assert.Empty(t, other)

	lock, ok, err := lm.Inspect("job")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, owner, lock.Owner)
	assert.True(t, lock.ExpiresAt.IsZero())

	released, err := lm.ReleaseLock("job", "someone-else")
	require.NoError(t, err)
	assert.False(t, released, "only the owner can release")

	released, err = lm.ReleaseLock("job", owner)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = lm.ReleaseLock("job", owner)
	require.NoError(t, err)
	assert.True(t, released, "releasing a free lock succeeds")

	ok, newOwner, err := lm.AcquireLock("job", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, owner, newOwner)
}

func TestSharedState(t *testing.T) {
	conn := newConn(t)
	first := NewLockManager(conn)
	second := NewLockManager(conn)

	ok, owner, err := first.AcquireLock("shared", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = second.AcquireLock("shared", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := second.ReleaseLock("shared", owner)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestExpiry(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	current := base
	now = func() time.Time { return current }
	t.Cleanup(func() { now = time.Now })

	lm := NewLockManager(newConn(t))

	ok, owner, err := lm.AcquireLock("lease", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	lock, ok, err := lm.Inspect("lease")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, base.Add(30*time.Second).Equal(lock.ExpiresAt), "expiry is kept in metadata")

	current = base.Add(29 * time.Second)
	ok, _, err = lm.AcquireLock("lease", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	current = base.Add(30 * time.Second)
	_, ok, err = lm.Inspect("lease")
	require.NoError(t, err)
	assert.False(t, ok, "expired locks are absent")

	ok, taker, err := lm.AcquireLock("lease", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired locks can be taken over")

	released, err := lm.ReleaseLock("lease", owner)
	require.NoError(t, err)
	assert.False(t, released, "the previous owner lost the lock")

	released, err = lm.ReleaseLock("lease", taker)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestNegativeTTL(t *testing.T) {
	lm := NewLockManager(newConn(t))
	_, _, err := lm.AcquireLock("x", -time.Second)
	assert.Error(t, err)
}

func TestConcurrentAcquire(t *testing.T) {
	lm := NewLockManager(newConn(t))

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := lm.AcquireLock("contended", 0)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}
