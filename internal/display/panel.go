// internal/display/panel.go
package display

import (
	"context"
	"image"
	"io"
	"sync/atomic"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"

	"github.com/pilab/busguard/internal/i2cbus"
)

const (
	DefaultWidth  = 128
	DefaultHeight = 32
)

// screen is the part of the ssd1306 driver the panel uses.
type screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Invert(blackOnWhite bool) error
	Halt() error
}

// Panel is an open display. Its methods are bus transactions.
type Panel struct {
	bus      io.Closer
	dev      screen
	inverted bool
}

func (p *Panel) Bounds() image.Rectangle { return p.dev.Bounds() }

// Show draws a full frame, switching polarity first if needed.
func (p *Panel) Show(img image.Image, invert bool) error {
	if invert != p.inverted {
		if err := p.dev.Invert(invert); err != nil {
			return err
		}
		p.inverted = invert
	}
	return p.dev.Draw(p.dev.Bounds(), img, image.Point{})
}

// Binding opens the SSD1306 at its fixed address 0x3C on a bus running at
// the reduced clock. Open leaves the panel cleared.
type Binding struct {
	Opener i2cbus.Opener
	Width  int
	Height int

	rotate atomic.Bool
	invert atomic.Bool

	open   func() (i2c.BusCloser, int, error)
	newDev func(b i2c.Bus, o *ssd1306.Opts) (screen, error)
}

// SetOrientation takes effect at the next Open.
func (b *Binding) SetOrientation(rotate, invert bool) {
	b.rotate.Store(rotate)
	b.invert.Store(invert)
}

func (b *Binding) Rotated() bool { return b.rotate.Load() }

func (b *Binding) Open(ctx context.Context) (*Panel, error) {
	open := b.open
	if open == nil {
		open = b.Opener.Open
	}
	newDev := b.newDev
	if newDev == nil {
		newDev = func(bus i2c.Bus, o *ssd1306.Opts) (screen, error) {
			d, err := ssd1306.NewI2C(bus, o)
			if err != nil {
				return nil, err
			}
			return d, nil
		}
	}

	bus, _, err := open()
	if err != nil {
		return nil, err
	}
	w, h := b.Width, b.Height
	if w == 0 {
		w = DefaultWidth
	}
	if h == 0 {
		h = DefaultHeight
	}
	dev, err := newDev(bus, &ssd1306.Opts{W: w, H: h, Rotated: b.rotate.Load()})
	if err != nil {
		bus.Close()
		return nil, err
	}

	// polarity is always written: the power-on state is not guaranteed
	// after a reset
	invert := b.invert.Load()
	p := &Panel{bus: bus, dev: dev, inverted: !invert}
	if err := p.Show(Blank(dev.Bounds()), invert); err != nil {
		bus.Close()
		return nil, err
	}
	return p, nil
}

// Close blanks the panel and releases the bus, best effort.
func (b *Binding) Close(p *Panel) error {
	if p == nil {
		return nil
	}
	haltErr := p.dev.Halt()
	if err := p.bus.Close(); err != nil {
		return err
	}
	return haltErr
}
