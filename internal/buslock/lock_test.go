// internal/buslock/lock_test.go
package buslock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "i2c-1.lock")
}

// Each *Lock owns its own descriptor, so several of them on one path behave
// like separate processes as far as flock is concerned.
func TestMutualExclusionAcrossDescriptors(t *testing.T) {
	path := lockPath(t)

	const (
		clients = 8
		rounds  = 20
	)

	var inside, maxInside, done int64
	var wg sync.WaitGroup

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := New(path)
			defer l.Close()

			for r := 0; r < rounds; r++ {
				err := l.WithLock(context.Background(), 5*time.Second, func() error {
					n := atomic.AddInt64(&inside, 1)
					for {
						m := atomic.LoadInt64(&maxInside)
						if n <= m || atomic.CompareAndSwapInt64(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					atomic.AddInt64(&inside, -1)
					return nil
				})
				if err != nil {
					t.Errorf("WithLock: %v", err)
					return
				}
				atomic.AddInt64(&done, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), maxInside, "more than one holder at once")
	assert.Equal(t, int64(clients*rounds), done, "some acquirer never proceeded")
}

func TestGoroutinesSharingOneLockAreExcluded(t *testing.T) {
	l := New(lockPath(t))
	defer l.Close()

	var inside, maxInside int64
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < 10; r++ {
				assert.NoError(t, l.WithLock(context.Background(), 5*time.Second, func() error {
					n := atomic.AddInt64(&inside, 1)
					if n > atomic.LoadInt64(&maxInside) {
						atomic.StoreInt64(&maxInside, n)
					}
					time.Sleep(500 * time.Microsecond)
					atomic.AddInt64(&inside, -1)
					return nil
				}))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), maxInside)
}

func TestAcquireTimesOutWhileHeldElsewhere(t *testing.T) {
	path := lockPath(t)
	a, b := New(path), New(path)
	defer a.Close()
	defer b.Close()

	held, err := a.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(400 * time.Millisecond)
		held.Release()
	}()

	start := time.Now()
	_, err = b.Acquire(context.Background(), 200*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 350*time.Millisecond, "waited past the timeout")

	// once A lets go, B gets in
	h, err := b.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestAcquireHonoursContext(t *testing.T) {
	path := lockPath(t)
	a, b := New(path), New(path)
	defer a.Close()
	defer b.Close()

	held, err := a.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = b.Acquire(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	path := lockPath(t)
	l := New(path)
	defer l.Close()

	func() {
		defer func() { _ = recover() }()
		_ = l.WithLock(context.Background(), time.Second, func() error {
			panic("boom")
		})
	}()

	other := New(path)
	defer other.Close()
	h, err := other.Acquire(context.Background(), 0)
	require.NoError(t, err, "lock still held after panic")
	require.NoError(t, h.Release())
}

func TestLockFileIsWorldWritableAndKept(t *testing.T) {
	path := lockPath(t)
	l := New(path)

	h, err := l.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, h.Release())
	require.NoError(t, h.Release(), "second release must be a no-op")
	require.NoError(t, l.Close())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o666), st.Mode().Perm())
}
