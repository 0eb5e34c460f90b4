// internal/busclient/classify.go
package busclient

import (
	"context"
	"errors"
	"slices"
	"strings"
	"syscall"

	"github.com/pilab/busguard/internal/buslock"
	"github.com/pilab/busguard/internal/deadline"
)

// ErrUnavailable is returned instead of a bus fault once the retry budget is
// spent, and for every call made while the device is disabled. Callers
// degrade (skip a refresh, report "unavailable") rather than crash.
var ErrUnavailable = errors.New("busclient: device unavailable")

// DefaultTransientErrnos are the bus errors worth retrying:
// EREMOTEIO (121, no ACK / remote I/O error) and ETIMEDOUT (110).
var DefaultTransientErrnos = []syscall.Errno{syscall.Errno(121), syscall.ETIMEDOUT}

type class int

const (
	classOK class = iota
	classTransient
	classLockBusy
	classCanceled
	classFatal
)

func (c class) String() string {
	switch c {
	case classOK:
		return "ok"
	case classTransient:
		return "transient"
	case classLockBusy:
		return "lock_busy"
	case classCanceled:
		return "canceled"
	default:
		return "error"
	}
}

// IsTransient reports whether err is a fault likely to clear on retry:
// a deadline timeout, or one of the given errnos.
//
// Some drivers flatten the errno into a message (periph's sysfs-i2c formats
// with %v), so the errno text is matched as a fallback.
func IsTransient(err error, errnos []syscall.Errno) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, deadline.ErrTimeout) {
		return true
	}
	var en syscall.Errno
	if errors.As(err, &en) {
		return slices.Contains(errnos, en)
	}
	msg := err.Error()
	for _, e := range errnos {
		if strings.Contains(msg, e.Error()) {
			return true
		}
	}
	return false
}

func classify(err error, errnos []syscall.Errno) class {
	switch {
	case err == nil:
		return classOK
	case errors.Is(err, buslock.ErrTimeout):
		return classLockBusy
	case IsTransient(err, errnos):
		return classTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return classCanceled
	default:
		return classFatal
	}
}
