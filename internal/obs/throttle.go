// internal/obs/throttle.go
package obs

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultThrottleInterval is the minimum gap between two log lines of the
// same error class.
const DefaultThrottleInterval = 5 * time.Second

// Throttle limits log output per error class. During a bus fault storm the
// retry loop can fail many times a second; the journal gets one line per
// class per interval.
type Throttle struct {
	every time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewThrottle creates a Throttle. every <= 0 uses DefaultThrottleInterval.
func NewThrottle(every time.Duration) *Throttle {
	if every <= 0 {
		every = DefaultThrottleInterval
	}
	return &Throttle{
		every:    every,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a line of the given class may be emitted now.
// A nil Throttle allows everything.
func (t *Throttle) Allow(class string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	lim, ok := t.limiters[class]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.every), 1)
		t.limiters[class] = lim
	}
	t.mu.Unlock()
	return lim.Allow()
}

// Warn logs at warn level if the class is not currently throttled.
func (t *Throttle) Warn(l *slog.Logger, class, msg string, args ...any) {
	if t.Allow(class) {
		l.Warn(msg, append(args, "class", class)...)
	}
}

// Error logs at error level if the class is not currently throttled.
func (t *Throttle) Error(l *slog.Logger, class, msg string, args ...any) {
	if t.Allow(class) {
		l.Error(msg, append(args, "class", class)...)
	}
}
