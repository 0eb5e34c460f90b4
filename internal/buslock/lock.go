// internal/buslock/lock.go
package buslock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned when the lock could not be acquired within the
// requested wait. Callers treat it as "try again later", never as fatal.
var ErrTimeout = errors.New("buslock: timeout")

const (
	// pollQuantum is the base sleep between non-blocking flock attempts.
	pollQuantum = 10 * time.Millisecond
	// pollJitter is added on top of pollQuantum so contending processes
	// do not retry in lockstep.
	pollJitter = 5 * time.Millisecond

	fileMode os.FileMode = 0o666
)

// Lock is an advisory, exclusive, cross-process lock on a file path.
//
// The file is opened (and created if absent) on first use and kept open for
// the lifetime of the process. It is never deleted: the same path must stay
// discoverable by every process that contends for the bus.
//
// flock(2) excludes open file descriptions, not goroutines, so goroutines
// sharing one *Lock are serialized by an in-process semaphore as well.
type Lock struct {
	path string

	openMu sync.Mutex
	f      *os.File

	sem chan struct{}
}

// Held is a successfully acquired lock. Release it exactly once.
type Held struct {
	l    *Lock
	once sync.Once
	err  error
}

// New creates a lock for path. No file is touched until the first Acquire.
func New(path string) *Lock {
	return &Lock{
		path: path,
		sem:  make(chan struct{}, 1),
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire waits up to timeout for exclusive ownership.
// A timeout <= 0 means a single non-blocking attempt.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (*Held, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	// in-process exclusion first, bounded by the same deadline
	if err := l.enter(ctx, deadline); err != nil {
		return nil, err
	}

	f, err := l.file()
	if err != nil {
		<-l.sem
		return nil, err
	}

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Held{l: l}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			<-l.sem
			return nil, fmt.Errorf("buslock: flock %s: %w", l.path, err)
		}
		if !time.Now().Before(deadline) {
			<-l.sem
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, l.path, time.Since(start).Round(time.Millisecond))
		}
		if err := sleepCtx(ctx, jittered()); err != nil {
			<-l.sem
			return nil, err
		}
	}
}

// WithLock runs fn while holding the lock. The lock is released on every
// exit path of fn, including a panic.
func (l *Lock) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	h, err := l.Acquire(ctx, timeout)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn()
}

// Close releases the underlying descriptor. The file itself stays on disk.
func (l *Lock) Close() error {
	l.openMu.Lock()
	defer l.openMu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Release unlocks. Safe to call more than once.
func (h *Held) Release() error {
	h.once.Do(func() {
		f, err := h.l.file()
		if err == nil {
			err = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		}
		h.err = err
		<-h.l.sem
	})
	return h.err
}

func (l *Lock) enter(ctx context.Context, deadline time.Time) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}

	wait := time.Until(deadline)
	if wait <= 0 {
		return fmt.Errorf("%w: %s held in-process", ErrTimeout, l.path)
	}
	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: %s held in-process", ErrTimeout, l.path)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lock) file() (*os.File, error) {
	l.openMu.Lock()
	defer l.openMu.Unlock()
	if l.f != nil {
		return l.f, nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, fileMode)
	if err != nil {
		return nil, fmt.Errorf("buslock: open %s: %w", l.path, err)
	}
	// umask usually strips the group/other write bits; services running
	// as different users all need to lock this file.
	_ = os.Chmod(l.path, fileMode)

	l.f = f
	return f, nil
}

func jittered() time.Duration {
	return pollQuantum + time.Duration(rand.Int63n(int64(pollJitter)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
