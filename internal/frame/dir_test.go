package frame

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func writeTestImage(t *testing.T, dir, name string, c color.Color) {
	t.Helper()
	img := imaging.New(8, 6, c)
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		t.Fatalf("saving %s: %v", name, err)
	}
}

func TestOpenDir_NoMatches(t *testing.T) {
	_, err := OpenDir(DirOptions{Dir: t.TempDir()})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestDirSource_ReadsInOrderThenEnds(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "b.png", color.White)
	writeTestImage(t, dir, "a.png", color.Black)
	writeTestImage(t, dir, "c.jpg", color.White) // not matched by the default pattern

	src, err := OpenDir(DirOptions{Dir: dir})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer src.Close()

	if src.Len() != 2 {
		t.Fatalf("Len = %d, want 2", src.Len())
	}

	ctx := context.Background()
	want := []string{"a.png", "b.png"}
	for i, name := range want {
		f, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if f.Source != name {
			t.Errorf("frame %d Source = %q, want %q", i, f.Source, name)
		}
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d Seq = %d, want %d", i, f.Seq, i+1)
		}
		if f.Image.Bounds() != image.Rect(0, 0, 8, 6) {
			t.Errorf("frame %d bounds = %v", i, f.Image.Bounds())
		}
		if f.Timestamp.IsZero() {
			t.Errorf("frame %d has zero timestamp", i)
		}
	}

	if _, err := src.Read(ctx); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("Read after last file: err = %v, want ErrStreamEnded", err)
	}
}

func TestDirSource_SkipsUndecodableFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "1.png", color.White)
	if err := os.WriteFile(filepath.Join(dir, "2.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeTestImage(t, dir, "3.png", color.White)

	src, err := OpenDir(DirOptions{Dir: dir})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}

	ctx := context.Background()
	var names []string
	for {
		f, err := src.Read(ctx)
		if errors.Is(err, ErrStreamEnded) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		names = append(names, f.Source)
	}
	if len(names) != 2 || names[0] != "1.png" || names[1] != "3.png" {
		t.Errorf("frames = %v, want [1.png 3.png]", names)
	}
}

func TestDirSource_Loop(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "only.png", color.White)

	src, err := OpenDir(DirOptions{Dir: dir, Loop: true})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		f, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if f.Seq != uint64(i) {
			t.Errorf("Seq = %d, want %d", f.Seq, i)
		}
	}
}

func TestDirSource_ReadAfterClose(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, dir, "x.png", color.White)

	src, err := OpenDir(DirOptions{Dir: dir})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("err = %v, want ErrStreamEnded", err)
	}
}
