package frame

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// DirOptions configures a DirSource.
type DirOptions struct {
	Dir string
	// Pattern is a filepath.Match glob. Defaults to "*.png".
	Pattern string
	// Loop restarts at the first file instead of ending the stream.
	Loop bool
}

// DirSource replays image files from a directory as a frame stream, in
// lexical file name order.
type DirSource struct {
	files  []string
	loop   bool
	next   int
	seq    uint64
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenDir lists the files matching opts and returns a source over them. A
// directory with no matching files is reported as ErrDeviceUnavailable.
func OpenDir(opts DirOptions) (*DirSource, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = "*.png"
	}
	matches, err := filepath.Glob(filepath.Join(opts.Dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrDeviceUnavailable, pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no files matching %q in %s", ErrDeviceUnavailable, pattern, opts.Dir)
	}
	sort.Strings(matches)

	return &DirSource{
		files:  matches,
		loop:   opts.Loop,
		now:    time.Now,
		logger: slog.Default(),
	}, nil
}

// Len returns the number of files in the replay set.
func (s *DirSource) Len() int {
	return len(s.files)
}

// Read decodes the next file. Files that fail to decode are skipped.
func (s *DirSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, fmt.Errorf("%w: source closed", ErrStreamEnded)
	}

	// One full pass without a decodable file ends the stream even in loop mode.
	for attempts := 0; attempts < len(s.files); attempts++ {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if s.next >= len(s.files) {
			if !s.loop {
				return Frame{}, ErrStreamEnded
			}
			s.next = 0
		}

		path := s.files[s.next]
		s.next++

		img, err := imaging.Open(path)
		if err != nil {
			s.logger.Warn("skipping undecodable frame file", "file", path, "error", err)
			continue
		}

		s.seq++
		return Frame{
			Seq:       s.seq,
			Timestamp: s.now(),
			Image:     img,
			Source:    filepath.Base(path),
		}, nil
	}

	if s.next >= len(s.files) && !s.loop {
		return Frame{}, ErrStreamEnded
	}
	return Frame{}, fmt.Errorf("%w: no decodable files in replay set", ErrStreamEnded)
}

func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
