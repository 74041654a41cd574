package archive

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func testFrame() image.Image {
	return imaging.New(32, 24, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
}

func newTestArchiver(t *testing.T, collision Collision) *Archiver {
	t.Helper()
	a, err := New(Options{Dir: filepath.Join(t.TempDir(), "frames"), Quality: 60, Collision: collision})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestFileName(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 5, 7, 999_000_000, time.UTC)
	if got := FileName(ts); got != "20250301_090507.jpg" {
		t.Errorf("FileName = %q, want 20250301_090507.jpg", got)
	}
}

func TestFileName_NonUTCZone(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, plus2)
	if got := FileName(ts); got != "20250301_100000.jpg" {
		t.Errorf("FileName = %q, want 20250301_100000.jpg", got)
	}

	a := newTestArchiver(t, CollisionSuffix)
	name, err := a.Save(testFrame(), ts)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != FileName(ts) {
		t.Errorf("Save name = %q, want %q", name, FileName(ts))
	}
}

func TestSave_WritesDecodableJPEG(t *testing.T) {
	a := newTestArchiver(t, CollisionSuffix)
	ts := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)

	name, err := a.Save(testFrame(), ts)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "20250301_090507.jpg" {
		t.Errorf("name = %q", name)
	}

	img, err := imaging.Open(filepath.Join(a.Dir(), name))
	if err != nil {
		t.Fatalf("decoding saved file: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Errorf("saved bounds = %v", img.Bounds())
	}
}

func TestSave_SameSecondSuffix(t *testing.T) {
	a := newTestArchiver(t, CollisionSuffix)
	ts := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)

	want := []string{"20250301_090507.jpg", "20250301_090507_1.jpg", "20250301_090507_2.jpg"}
	for i, w := range want {
		name, err := a.Save(testFrame(), ts.Add(time.Duration(i)*100*time.Millisecond))
		if err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		if name != w {
			t.Errorf("Save %d name = %q, want %q", i, name, w)
		}
	}

	entries, err := os.ReadDir(a.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("archive holds %d files, want 3", len(entries))
	}
}

func TestSave_SameSecondOverwrite(t *testing.T) {
	a := newTestArchiver(t, CollisionOverwrite)
	ts := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)

	for i := 0; i < 2; i++ {
		name, err := a.Save(testFrame(), ts)
		if err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		if name != "20250301_090507.jpg" {
			t.Errorf("name = %q", name)
		}
	}

	entries, err := os.ReadDir(a.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("archive holds %d files, want 1", len(entries))
	}
}

func TestSave_WriteError(t *testing.T) {
	a := newTestArchiver(t, CollisionSuffix)
	if err := os.RemoveAll(a.Dir()); err != nil {
		t.Fatal(err)
	}

	_, err := a.Save(testFrame(), time.Now())
	if !errors.Is(err, ErrWrite) {
		t.Errorf("err = %v, want ErrWrite", err)
	}
}

func TestSave_NilImage(t *testing.T) {
	a := newTestArchiver(t, CollisionSuffix)
	if _, err := a.Save(nil, time.Now()); !errors.Is(err, ErrWrite) {
		t.Errorf("err = %v, want ErrWrite", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for empty dir")
	}
	if _, err := New(Options{Dir: t.TempDir(), Collision: "rename"}); err == nil {
		t.Error("expected error for unknown collision policy")
	}
}

func TestQualityClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultQuality},
		{-5, 1},
		{1, 1},
		{85, 85},
		{150, 100},
	}
	for _, tt := range tests {
		a, err := New(Options{Dir: t.TempDir(), Quality: tt.in})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if a.Quality() != tt.want {
			t.Errorf("Quality(%d) = %d, want %d", tt.in, a.Quality(), tt.want)
		}
	}
}

func TestParseCollision(t *testing.T) {
	for _, s := range []string{"", "suffix"} {
		if c, err := ParseCollision(s); err != nil || c != CollisionSuffix {
			t.Errorf("ParseCollision(%q) = %q, %v", s, c, err)
		}
	}
	if c, err := ParseCollision("overwrite"); err != nil || c != CollisionOverwrite {
		t.Errorf("ParseCollision(overwrite) = %q, %v", c, err)
	}
	if _, err := ParseCollision("bogus"); err == nil {
		t.Error("expected error for bogus policy")
	}
}
