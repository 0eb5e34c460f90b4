// internal/status/tracker_test.go
package status

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/buslock"
	"github.com/pilab/busguard/internal/deadline"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want uint16
	}{
		{nil, 0},
		{syscall.Errno(121), 121},
		{fmt.Errorf("ina219: read reg 0x01: %w", syscall.ETIMEDOUT), 110},
		{fmt.Errorf("%w after 1.5s", deadline.ErrTimeout), 110},
		{fmt.Errorf("%w: /run/lock/i2c-1.lock", buslock.ErrTimeout), uint16(syscall.EAGAIN)},
		{errors.New("weird"), 1},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Fatalf("ErrorCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTracker_ErrorThenRecovery(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return clock }

	s := tr.Observe(syscall.Errno(121), busclient.Stats{SoftReinits: 2})
	if s.Health != HealthError || s.LastErrorCode != 121 || s.SecondsInError != 0 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if s.SoftReinits != 2 {
		t.Fatalf("soft reinits = %d", s.SoftReinits)
	}

	clock = clock.Add(7 * time.Second)
	s = tr.Observe(syscall.Errno(121), busclient.Stats{})
	if s.SecondsInError != 7 {
		t.Fatalf("seconds in error = %d, want 7", s.SecondsInError)
	}

	s = tr.Observe(nil, busclient.Stats{})
	if s.Health != HealthOK || s.SecondsInError != 0 {
		t.Fatalf("unexpected snapshot after recovery: %+v", s)
	}
	// last error code is kept for diagnosis
	if s.LastErrorCode != 121 {
		t.Fatalf("last error code = %d", s.LastErrorCode)
	}
}

func TestTracker_Disabled(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return clock }

	s := tr.Observe(busclient.ErrUnavailable, busclient.Stats{
		Disabled:      true,
		DisabledUntil: clock.Add(42500 * time.Millisecond),
		LastError:     fmt.Errorf("%w after 1.5s", deadline.ErrTimeout),
	})
	if s.Health != HealthDisabled {
		t.Fatalf("health = %d, want disabled", s.Health)
	}
	if s.LastErrorCode != 110 {
		t.Fatalf("last error = %d, want 110", s.LastErrorCode)
	}
	if s.ProbeIn != 43 {
		t.Fatalf("probe in = %d, want 43", s.ProbeIn)
	}
}

func TestTracker_LockBusyIsStale(t *testing.T) {
	tr := NewTracker()
	s := tr.Observe(fmt.Errorf("%w: x", buslock.ErrTimeout), busclient.Stats{})
	if s.Health != HealthStale {
		t.Fatalf("health = %d, want stale", s.Health)
	}
}

func TestTracker_SecondsInErrorSaturates(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return clock }

	tr.Observe(syscall.ETIMEDOUT, busclient.Stats{})
	clock = clock.Add(30 * time.Hour)
	if s := tr.Observe(syscall.ETIMEDOUT, busclient.Stats{}); s.SecondsInError != CounterMax {
		t.Fatalf("seconds in error = %d, want saturated", s.SecondsInError)
	}
}

func TestEncode(t *testing.T) {
	regs := Encode(Snapshot{Health: HealthDisabled, LastErrorCode: 121, SecondsInError: 9, SoftReinits: 4, HardResets: 1, ProbeIn: 30})
	if len(regs) != SlotsPerDevice {
		t.Fatalf("len = %d", len(regs))
	}
	want := []uint16{HealthDisabled, 121, 9, 4, 1, 30}
	for i, v := range want {
		if regs[i] != v {
			t.Fatalf("slot %d = %d, want %d", i, regs[i], v)
		}
	}
}

func TestTracker_TickCountsWhileInError(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return clock }

	tr.Observe(busclient.ErrUnavailable, busclient.Stats{
		Disabled:      true,
		DisabledUntil: clock.Add(10 * time.Second),
	})

	clock = clock.Add(4 * time.Second)
	s := tr.Tick()
	if s.SecondsInError != 4 {
		t.Fatalf("seconds in error = %d, want 4", s.SecondsInError)
	}
	if s.ProbeIn != 6 {
		t.Fatalf("probe in = %d, want 6", s.ProbeIn)
	}

	clock = clock.Add(20 * time.Second)
	if s := tr.Tick(); s.ProbeIn != 0 {
		t.Fatalf("probe in after cooldown = %d, want 0", s.ProbeIn)
	}

	tr.Observe(nil, busclient.Stats{})
	clock = clock.Add(time.Minute)
	if s := tr.Tick(); s.SecondsInError != 0 {
		t.Fatalf("tick while healthy counted %d seconds", s.SecondsInError)
	}
}
