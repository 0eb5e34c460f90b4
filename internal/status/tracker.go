// internal/status/tracker.go
package status

import (
	"context"
	"errors"
	"math"
	"syscall"
	"time"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/buslock"
	"github.com/pilab/busguard/internal/deadline"
)

// Tracker folds transaction outcomes into a Snapshot.
type Tracker struct {
	snap       Snapshot
	errorSince time.Time
	probeAt    time.Time

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Observe records one outcome together with the client's protocol state.
func (t *Tracker) Observe(err error, st busclient.Stats) Snapshot {
	now := t.now()

	t.snap.SoftReinits = saturate(st.SoftReinits)
	t.snap.HardResets = saturate(st.HardResets)
	t.snap.ProbeIn = 0
	t.probeAt = time.Time{}

	switch {
	case err == nil:
		t.snap.Health = HealthOK
		t.snap.SecondsInError = 0
		t.errorSince = time.Time{}
		return t.snap

	case errors.Is(err, busclient.ErrUnavailable) || st.Disabled:
		t.snap.Health = HealthDisabled
		if st.LastError != nil {
			t.snap.LastErrorCode = ErrorCode(st.LastError)
		}
		t.probeAt = st.DisabledUntil

	case errors.Is(err, buslock.ErrTimeout):
		t.snap.Health = HealthStale
		t.snap.LastErrorCode = ErrorCode(err)

	default:
		t.snap.Health = HealthError
		t.snap.LastErrorCode = ErrorCode(err)
	}

	if t.errorSince.IsZero() {
		t.errorSince = now
	}
	t.age(now)
	return t.snap
}

// Tick refreshes the time-derived slots without a new outcome. Callers
// run it at 1 Hz so seconds-in-error keeps counting between polls.
func (t *Tracker) Tick() Snapshot {
	if t.snap.Health != HealthOK && !t.errorSince.IsZero() {
		t.age(t.now())
	}
	return t.snap
}

func (t *Tracker) age(now time.Time) {
	t.snap.SecondsInError = saturate(int(now.Sub(t.errorSince) / time.Second))
	t.snap.ProbeIn = 0
	if d := t.probeAt.Sub(now); !t.probeAt.IsZero() && d > 0 {
		t.snap.ProbeIn = saturate(int(math.Ceil(d.Seconds())))
	}
}

// Snapshot returns the last folded state.
func (t *Tracker) Snapshot() Snapshot { return t.snap }

// ErrorCode maps an error to the register value: the errno when there is
// one, ETIMEDOUT for deadline expiry, EAGAIN for lock contention,
// ECANCELED for shutdown and 1 for anything else.
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}
	var en syscall.Errno
	switch {
	case errors.As(err, &en):
		return uint16(en)
	case errors.Is(err, deadline.ErrTimeout):
		return uint16(syscall.ETIMEDOUT)
	case errors.Is(err, buslock.ErrTimeout):
		return uint16(syscall.EAGAIN)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return uint16(syscall.ECANCELED)
	default:
		return 1
	}
}

func saturate(n int) uint16 {
	if n < 0 {
		return 0
	}
	if n > CounterMax {
		return CounterMax
	}
	return uint16(n)
}
