package archive

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"
)

// OutlineColor is the overlay color for detected code outlines.
var OutlineColor = color.NRGBA{G: 255, A: 255}

const outlineWidth = 2.0

// Annotate returns a copy of img with polygon drawn as a closed outline.
// The input is never modified. Fewer than 3 points returns img unchanged.
func Annotate(img image.Image, polygon []image.Point) image.Image {
	if img == nil || len(polygon) < 3 {
		return img
	}

	origin := img.Bounds().Min
	// Clone re-bases the copy at (0,0).
	dst := imaging.Clone(img)
	b := dst.Bounds()
	if b.Empty() {
		return img
	}

	src := image.NewUniform(OutlineColor)
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for i := range polygon {
		p := polygon[i].Sub(origin)
		q := polygon[(i+1)%len(polygon)].Sub(origin)
		// One rasterizer pass per edge so overlapping corners never cancel out.
		z.Reset(b.Dx(), b.Dy())
		addSegment(z, float32(p.X), float32(p.Y), float32(q.X), float32(q.Y))
		z.Draw(dst, b, src, image.Point{})
	}
	return dst
}

// addSegment adds the edge as a thin filled quad.
func addSegment(z *vector.Rasterizer, x0, y0, x1, y1 float32) {
	dx, dy := x1-x0, y1-y0
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}
	half := float32(outlineWidth / 2)
	nx, ny := -dy/length*half, dx/length*half

	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
}
