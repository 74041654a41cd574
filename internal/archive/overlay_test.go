package archive

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func TestAnnotate_DrawsOutlineOnCopy(t *testing.T) {
	src := imaging.New(40, 40, color.NRGBA{A: 255})
	poly := []image.Point{{10, 10}, {30, 10}, {30, 30}, {10, 30}}

	out := Annotate(src, poly)
	if out == image.Image(src) {
		t.Fatal("Annotate returned the input image")
	}

	r, g, b, _ := out.At(20, 10).RGBA()
	if g>>8 < 200 || r>>8 > 50 || b>>8 > 50 {
		t.Errorf("edge pixel = (%d,%d,%d), want green", r>>8, g>>8, b>>8)
	}

	// Interior stays untouched.
	r, g, b, _ = out.At(20, 20).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("interior pixel = (%d,%d,%d), want black", r>>8, g>>8, b>>8)
	}

	// Source is not modified.
	if _, g, _, _ := src.At(20, 10).RGBA(); g != 0 {
		t.Error("source image was modified")
	}
}

func TestAnnotate_TooFewPoints(t *testing.T) {
	src := imaging.New(8, 8, color.White)
	if out := Annotate(src, []image.Point{{1, 1}, {5, 5}}); out != image.Image(src) {
		t.Error("expected input returned unchanged for a 2-point polygon")
	}
	if out := Annotate(nil, []image.Point{{1, 1}, {5, 5}, {1, 5}}); out != nil {
		t.Error("expected nil for nil input")
	}
}

func TestAnnotate_OffsetBounds(t *testing.T) {
	base := imaging.New(40, 40, color.NRGBA{A: 255})
	sub := base.SubImage(image.Rect(10, 10, 40, 40))
	poly := []image.Point{{15, 15}, {35, 15}, {35, 35}, {15, 35}}

	out := Annotate(sub, poly)
	if out.Bounds().Min != (image.Point{}) {
		t.Fatalf("annotated bounds = %v, want origin-based", out.Bounds())
	}
	// Polygon vertex (15,15) in source coordinates maps to (5,5) in the copy.
	if _, g, _, _ := out.At(10, 5).RGBA(); g>>8 < 200 {
		t.Errorf("expected top edge at y=5 in re-based copy")
	}
}
