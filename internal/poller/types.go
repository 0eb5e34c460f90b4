// internal/poller/types.go
package poller

import (
	"time"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/device/ina219"
)

// Result is a snapshot produced by one poll cycle.
type Result struct {
	Device string
	At     time.Time

	// Measurement is valid only when Err is nil.
	Measurement ina219.Measurement
	Err         error // non-nil means the poll cycle failed

	// Stats is the bus client state right after the cycle.
	Stats busclient.Stats
}

// OK reports whether the cycle produced a measurement.
func (r Result) OK() bool { return r.Err == nil }
