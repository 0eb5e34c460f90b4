// internal/display/slider.go
package display

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/pilab/busguard/internal/busclient"
	"github.com/pilab/busguard/internal/obs"
	"github.com/pilab/busguard/internal/watchdog"
)

const (
	DefaultSlideInterval = 10 * time.Second
	// DisabledPoll is the heartbeat sleep while the panel is disabled.
	DisabledPoll = 2 * time.Second
	goodbyeHold  = 2 * time.Second
)

// Settings are re-read before every slide, so edits to the config file
// apply without a restart.
type Settings struct {
	Auto      bool
	Interval  time.Duration
	Rotate    bool
	Invert    bool
	WhiteTest bool
}

// Slider cycles status pages on the panel.
type Slider struct {
	Client   *busclient.Client[*Panel]
	Binding  *Binding
	Pages    func() [][]string
	Settings func() Settings
	Progress *watchdog.Progress
	Logger   *slog.Logger
	Throttle *obs.Throttle

	idx   int
	sleep func(ctx context.Context, d time.Duration) error
}

func (s *Slider) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Slider) pause(ctx context.Context, d time.Duration) error {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	return watchdog.Sleep(ctx, s.Progress, d)
}

// Run slides until ctx is done. With Auto off the current page stays up and
// is refreshed every DisabledPoll.
func (s *Slider) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.Progress.Touch()

		st := s.Settings()
		interval := st.Interval
		if interval <= 0 {
			interval = DefaultSlideInterval
		}
		s.applyOrientation(ctx, st)

		var wait time.Duration
		switch {
		case st.WhiteTest:
			s.show(ctx, st, nil)
			wait = interval
		case s.Client.Disabled() && !s.Client.ProbeAllowed():
			wait = DisabledPoll
		case st.Auto:
			s.idx++
			s.show(ctx, st, s.page())
			wait = interval
		default:
			s.show(ctx, st, s.page())
			wait = DisabledPoll
		}

		if err := s.pause(ctx, wait); err != nil {
			return nil
		}
	}
}

// Welcome shows the start screen.
func (s *Slider) Welcome(ctx context.Context, title string) {
	s.show(ctx, s.Settings(), []string{title, "    Loading..."})
}

// Goodbye shows the farewell screen for a moment, then blanks the panel.
// It runs after the main context is gone, so it takes its own.
func (s *Slider) Goodbye(ctx context.Context) {
	st := s.Settings()
	st.WhiteTest = false
	s.show(ctx, st, []string{"", "   Good Bye ~"})
	if err := s.pause(ctx, goodbyeHold); err != nil {
		return
	}
	s.show(ctx, st, []string{})
}

func (s *Slider) page() []string {
	pages := s.Pages()
	if len(pages) == 0 {
		return nil
	}
	return pages[s.idx%len(pages)]
}

// show pushes one frame. nil lines means the white test frame.
func (s *Slider) show(ctx context.Context, st Settings, lines []string) {
	err := s.Client.Perform(ctx, func(_ context.Context, p *Panel) error {
		var img image.Image
		if lines == nil {
			img = White(p.Bounds())
		} else {
			img = Render(p.Bounds(), lines)
		}
		return p.Show(img, st.Invert)
	})
	switch {
	case err == nil:
	case errors.Is(err, busclient.ErrUnavailable):
		s.log().Debug("display unavailable, frame skipped")
	case errors.Is(err, context.Canceled):
	default:
		s.Throttle.Warn(s.log(), "display", "display update failed", "error", err)
	}
}

func (s *Slider) applyOrientation(ctx context.Context, st Settings) {
	if s.Binding == nil {
		return
	}
	rotated := s.Binding.Rotated()
	s.Binding.SetOrientation(st.Rotate, st.Invert)
	if st.Rotate == rotated {
		return
	}
	// rotation is a driver option, so it needs a fresh handle
	if err := s.Client.Reinit(ctx, false); err != nil {
		s.Throttle.Warn(s.log(), "display", "display re-init for rotation failed", "error", err)
	}
}
