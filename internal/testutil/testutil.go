// Package testutil renders synthetic product label images for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Label describes a synthetic product label to render.
type Label struct {
	Lines      []string
	Width      int
	Height     int
	Background color.Color
	Foreground color.Color
	Rotation   float64 // degrees, counterclockwise
}

// ProductLabel returns a label with the given text lines and defaults
// for size and colors. Without arguments it carries a product name line
// and a barcode line.
func ProductLabel(lines ...string) Label {
	if len(lines) == 0 {
		lines = []string{"Premium Tea", "890123456"}
	}
	return Label{
		Lines:      lines,
		Width:      320,
		Height:     240,
		Background: color.White,
		Foreground: color.Black,
	}
}

// Render draws the label lines centered on the canvas with a fixed
// bitmap font and applies the configured rotation.
func (l Label) Render() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, l.Width, l.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{l.Background}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{l.Foreground},
		Face: face,
	}

	lineHeight := face.Metrics().Height.Ceil() + 4
	startY := (l.Height - len(l.Lines)*lineHeight) / 2
	for i, line := range l.Lines {
		textWidth := font.MeasureString(face, line).Ceil()
		drawer.Dot = fixed.P((l.Width-textWidth)/2, startY+(i+1)*lineHeight)
		drawer.DrawString(line)
	}

	if l.Rotation != 0 {
		rotated := imaging.Rotate(img, l.Rotation, l.Background)
		out := image.NewNRGBA(rotated.Bounds())
		draw.Draw(out, out.Bounds(), rotated, rotated.Bounds().Min, draw.Src)
		return out
	}
	return img
}

// PNGBlob encodes an image as a PNG byte slice.
func PNGBlob(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

// JPEGBlob encodes an image as a JPEG byte slice.
func JPEGBlob(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)))
	return buf.Bytes()
}

// MeanPixelDiff returns the average per-pixel color distance between
// two images. Images with different bounds compare as maximally
// different.
func MeanPixelDiff(a, b image.Image) float64 {
	bounds := a.Bounds()
	if bounds != b.Bounds() {
		return math.MaxFloat64
	}

	var total, pixels float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, a1 := a.At(x, y).RGBA()
			r2, g2, b2, a2 := b.At(x, y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			total += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixels++
		}
	}
	return total / pixels
}
