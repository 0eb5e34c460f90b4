// internal/display/render.go
package display

import (
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Blank returns an all-off frame.
func Blank(r image.Rectangle) *image1bit.VerticalLSB {
	return image1bit.NewVerticalLSB(r)
}

// White returns an all-on frame, used to spot dead pixels.
func White(r image.Rectangle) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(r)
	draw.Draw(img, r, &image.Uniform{C: image1bit.On}, image.Point{}, draw.Src)
	return img
}

// Render draws up to one line per text row. Extra lines are dropped, long
// lines are clipped at the panel edge.
func Render(r image.Rectangle, lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(r)
	d := font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: basicfont.Face7x13,
	}
	baselines := baselinesFor(r.Dy(), len(lines))
	for i, line := range lines {
		if i >= len(baselines) {
			break
		}
		d.Dot = fixed.P(r.Min.X, r.Min.Y+baselines[i])
		d.DrawString(line)
	}
	return img
}

// baselinesFor spreads n text rows over a panel h pixels tall. On a 32 px
// panel three rows fit only if the top one clips by a pixel.
func baselinesFor(h, n int) []int {
	if h <= 32 {
		switch n {
		case 1:
			return []int{20}
		case 2:
			return []int{13, 29}
		default:
			return []int{9, 20, 31}
		}
	}
	var out []int
	for y := 11; y < h; y += 13 {
		out = append(out, y)
	}
	return out
}
