// internal/watchdog/watchdog.go
package watchdog

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// ExitCode is the process exit status after a liveness breach.
// Anything nonzero makes systemd's Restart=on-failure kick in; 70 keeps it
// distinguishable from ordinary failures in the journal.
const ExitCode = 70

// DefaultPoll is how often the watchdog compares progress against its ceiling.
const DefaultPoll = 2 * time.Second

// Progress is the process-wide "last forward progress" timestamp.
// Writers and the watchdog goroutine only share this one atomic value.
type Progress struct {
	base time.Time
	last atomic.Int64 // nanoseconds since base, monotonic
}

// NewProgress returns a Progress that counts as touched now.
func NewProgress() *Progress {
	return &Progress{base: time.Now()}
}

// Touch records forward progress.
func (p *Progress) Touch() {
	if p == nil {
		return
	}
	p.last.Store(int64(time.Since(p.base)))
}

// Since reports how long ago progress was last recorded.
func (p *Progress) Since() time.Duration {
	return time.Since(p.base) - time.Duration(p.last.Load())
}

// Watchdog force-exits the process when progress stalls for longer than
// Ceiling. It never attempts a graceful shutdown: the graceful path may be
// the very thing that is hung. The service manager restarts the process.
type Watchdog struct {
	Progress *Progress
	Ceiling  time.Duration // <= 0 disables the watchdog
	Poll     time.Duration
	Logger   *slog.Logger

	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
}

// Run watches until ctx is done. It returns immediately when disabled.
func (w *Watchdog) Run(ctx context.Context) {
	if w.Ceiling <= 0 || w.Progress == nil {
		return
	}
	poll := w.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	exit := w.Exit
	if exit == nil {
		exit = os.Exit
	}
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}

	t := time.NewTicker(poll)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stalled := w.Progress.Since()
			if stalled > w.Ceiling {
				log.Error("watchdog: no progress, exiting for service restart",
					"stalled", stalled.Round(time.Millisecond),
					"ceiling", w.Ceiling)
				exit(ExitCode)
				return
			}
		}
	}
}

// Sleep waits for d while touching p at least once a second, so a long idle
// period in a control loop is not mistaken for a hang.
func Sleep(ctx context.Context, p *Progress, d time.Duration) error {
	end := time.Now().Add(d)
	for {
		remaining := time.Until(end)
		if remaining <= 0 {
			return nil
		}
		p.Touch()
		step := min(remaining, time.Second)

		t := time.NewTimer(step)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
