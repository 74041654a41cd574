// Package archive writes JPEG snapshots of frames in which a new payload was seen.
package archive

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// ErrWrite wraps every failure to persist a snapshot.
var ErrWrite = errors.New("archive write failed")

// NameLayout is the timestamp layout used for snapshot file names. Names are
// always formatted in UTC, the zone first_seen is stored in.
const NameLayout = "20060102_150405"

const (
	DefaultQuality = 60
	maxSuffix      = 999
)

// Collision decides what happens when two snapshots share a second.
type Collision string

const (
	// CollisionSuffix keeps the existing file and writes name_1.jpg, name_2.jpg, ...
	CollisionSuffix Collision = "suffix"
	// CollisionOverwrite replaces the existing file.
	CollisionOverwrite Collision = "overwrite"
)

// ParseCollision validates a policy name. An empty name selects CollisionSuffix.
func ParseCollision(s string) (Collision, error) {
	switch Collision(s) {
	case "", CollisionSuffix:
		return CollisionSuffix, nil
	case CollisionOverwrite:
		return CollisionOverwrite, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q (want %q or %q)", s, CollisionSuffix, CollisionOverwrite)
	}
}

type Options struct {
	Dir string
	// Quality is the JPEG quality, 1-100. Zero selects DefaultQuality.
	Quality   int
	Collision Collision
}

// Archiver saves frames into one directory at a fixed JPEG quality.
type Archiver struct {
	dir       string
	quality   int
	collision Collision
}

// New creates the output directory if needed.
func New(opts Options) (*Archiver, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	collision, err := ParseCollision(string(opts.Collision))
	if err != nil {
		return nil, err
	}
	return &Archiver{
		dir:       opts.Dir,
		quality:   clampQuality(opts.Quality),
		collision: collision,
	}, nil
}

func clampQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < 1:
		return 1
	case q > 100:
		return 100
	default:
		return q
	}
}

func (a *Archiver) Dir() string  { return a.dir }
func (a *Archiver) Quality() int { return a.quality }

// FileName returns the base snapshot name for ts at second resolution, in UTC.
func FileName(ts time.Time) string {
	return ts.UTC().Format(NameLayout) + ".jpg"
}

// Save encodes img and returns the base name of the written file.
func (a *Archiver) Save(img image.Image, ts time.Time) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: nil image", ErrWrite)
	}

	f, name, err := a.create(ts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(a.dir, name)
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(a.quality)); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: encoding %s: %v", ErrWrite, name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: syncing %s: %v", ErrWrite, name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: closing %s: %v", ErrWrite, name, err)
	}
	return name, nil
}

func (a *Archiver) create(ts time.Time) (*os.File, string, error) {
	base := ts.UTC().Format(NameLayout)

	if a.collision == CollisionOverwrite {
		name := base + ".jpg"
		f, err := os.OpenFile(filepath.Join(a.dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, "", fmt.Errorf("%w: creating %s: %v", ErrWrite, name, err)
		}
		return f, name, nil
	}

	for i := 0; i <= maxSuffix; i++ {
		name := base + ".jpg"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.jpg", base, i)
		}
		f, err := os.OpenFile(filepath.Join(a.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("%w: creating %s: %v", ErrWrite, name, err)
		}
	}
	return nil, "", fmt.Errorf("%w: more than %d snapshots named %s", ErrWrite, maxSuffix, base)
}
