// internal/record/overlay.go

package record

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tamzrod/fieldrec/internal/snapshot"
)

// Text block placement, measured from the frame's right edge. The
// camera label sits on top with the data lines stacked below it.
const (
	overlayRightInset  = 120
	overlayLeftMargin  = 4
	overlayTopBaseline = 20
	overlayLineStep    = 16
)

var (
	labelColor = image.NewUniform(color.RGBA{R: 0xff, G: 0xff, A: 0xff})
	valueColor = image.NewUniform(color.RGBA{G: 0xff, A: 0xff})
)

// overlayLines renders the text block for one frame: the camera label
// first, then one line per enabled point against the given snapshot.
// Disabled points leave no blank line behind.
func overlayLines(camera string, points []OverlayPoint, snap snapshot.Snapshot) []string {
	lines := make([]string, 0, len(points)+1)
	lines = append(lines, camera)
	for _, p := range points {
		if !p.Enabled {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", p.Label, snap.At(p.Index).String()))
	}
	return lines
}

// drawOverlay stamps the lines onto the canvas with Face7x13.
func drawOverlay(c *rgbCanvas, lines []string) {
	x := c.rect.Dx() - overlayRightInset
	if x < overlayLeftMargin {
		x = overlayLeftMargin
	}
	y := overlayTopBaseline
	for i, line := range lines {
		src := valueColor
		if i == 0 {
			src = labelColor
		}
		d := font.Drawer{
			Dst:  c,
			Src:  src,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(line)
		y += overlayLineStep
	}
}

// ------------------------------------------------------------
// ---- RGB CANVAS ----
// ------------------------------------------------------------

// rgbCanvas exposes a packed 24-bit RGB buffer as a draw target, so
// the font drawer and the scaler work on frame bytes directly.
type rgbCanvas struct {
	pix  []byte
	rect image.Rectangle
}

func newCanvas(w, h int) *rgbCanvas {
	return &rgbCanvas{pix: make([]byte, w*h*3), rect: image.Rect(0, 0, w, h)}
}

// canvasFrom wraps pix without copying. Callers that must not mutate
// the original clone first.
func canvasFrom(pix []byte, w, h int) *rgbCanvas {
	return &rgbCanvas{pix: pix, rect: image.Rect(0, 0, w, h)}
}

func (c *rgbCanvas) clone() *rgbCanvas {
	pix := make([]byte, len(c.pix))
	copy(pix, c.pix)
	return &rgbCanvas{pix: pix, rect: c.rect}
}

func (c *rgbCanvas) ColorModel() color.Model { return color.RGBAModel }

func (c *rgbCanvas) Bounds() image.Rectangle { return c.rect }

func (c *rgbCanvas) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(c.rect) {
		return color.RGBA{}
	}
	i := (y*c.rect.Dx() + x) * 3
	return color.RGBA{R: c.pix[i], G: c.pix[i+1], B: c.pix[i+2], A: 0xff}
}

func (c *rgbCanvas) Set(x, y int, col color.Color) {
	if !(image.Point{X: x, Y: y}).In(c.rect) {
		return
	}
	i := (y*c.rect.Dx() + x) * 3
	r, g, b, _ := col.RGBA()
	c.pix[i] = uint8(r >> 8)
	c.pix[i+1] = uint8(g >> 8)
	c.pix[i+2] = uint8(b >> 8)
}

// rescale resizes src to w x h with nearest-neighbour sampling.
func rescale(src *rgbCanvas, w, h int) *rgbCanvas {
	dst := newCanvas(w, h)
	xdraw.NearestNeighbor.Scale(dst, dst.rect, src, src.rect, xdraw.Src, nil)
	return dst
}
