// internal/busclient/policy.go
package busclient

import (
	"errors"
	"syscall"
	"time"
)

// Policy tunes retry and escalation. The daemons deliberately run with
// different values (a display tolerates a hard reset far sooner than a
// sensor logger), so nothing here is a universal constant.
type Policy struct {
	// Attempts is the transaction budget of one Perform call.
	Attempts int
	// BackoffBase is the first sleep between attempts; it doubles per retry
	// and starts over on the next Perform call.
	BackoffBase time.Duration

	// SoftReinitAfter consecutive failures trigger a soft re-init before the
	// next attempt.
	SoftReinitAfter int
	// HardResetAfter consecutive failures escalate the re-init to a hard bus
	// reset. 0 disables hard resets.
	HardResetAfter int
	// ReinitMinInterval rate-limits re-inits of any kind. 0 means no limit.
	ReinitMinInterval time.Duration
	// HardResetCooldown is the minimum gap between two hard reset attempts.
	HardResetCooldown time.Duration
	// DisableCooldown is how long the device stays disabled after the
	// budget is exhausted.
	DisableCooldown time.Duration

	LockTimeout time.Duration
	// OpenLockTimeout bounds the lock wait of a re-init, which may need to
	// outlast a neighbour's burst. 0 uses LockTimeout.
	OpenLockTimeout time.Duration
	// OpTimeout bounds one transaction. <= 0 disables the guard.
	OpTimeout time.Duration
	// SettleDelay is the pause between teardown and reopen.
	SettleDelay time.Duration

	TransientErrnos []syscall.Errno
}

// DefaultPolicy mirrors the display daemon: soft re-init on every failure,
// hard reset from the second one on.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:          3,
		BackoffBase:       50 * time.Millisecond,
		SoftReinitAfter:   1,
		HardResetAfter:    2,
		HardResetCooldown: 10 * time.Second,
		DisableCooldown:   60 * time.Second,
		LockTimeout:       time.Second,
		OpTimeout:         1500 * time.Millisecond,
		SettleDelay:       50 * time.Millisecond,
		TransientErrnos:   DefaultTransientErrnos,
	}
}

// Validate rejects policies that cannot make progress.
func (p Policy) Validate() error {
	if p.Attempts < 1 {
		return errors.New("busclient: attempts must be >= 1")
	}
	if p.SoftReinitAfter < 1 {
		return errors.New("busclient: soft_reinit_after must be >= 1")
	}
	if p.HardResetAfter < 0 {
		return errors.New("busclient: hard_reset_after must be >= 0")
	}
	if p.HardResetAfter > 0 && p.HardResetAfter < p.SoftReinitAfter {
		return errors.New("busclient: hard_reset_after must not be below soft_reinit_after")
	}
	if p.BackoffBase < 0 || p.DisableCooldown < 0 || p.HardResetCooldown < 0 || p.ReinitMinInterval < 0 {
		return errors.New("busclient: durations must not be negative")
	}
	return nil
}
