// Package capture runs the read, detect, deduplicate, persist loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/codewatch/internal/detect"
	"github.com/kalambet/codewatch/internal/frame"
	"github.com/kalambet/codewatch/internal/session"
	"github.com/kalambet/codewatch/internal/storage"
)

// ErrAlreadyRun is returned when Run is called on a loop that has already stopped.
var ErrAlreadyRun = errors.New("capture loop already run")

// EventStore abstracts the durable ledger.
type EventStore interface {
	RecordCode(ev storage.CodeEvent) (storage.RecordResult, error)
	RecordDuplicate(payload string, seenAt time.Time, sessionID string) error
	Close() error
}

// PayloadLister is implemented by stores that can seed a session.
type PayloadLister interface {
	ListPayloads() ([]string, error)
}

// FrameArchiver saves a snapshot and returns its file name.
type FrameArchiver interface {
	Save(img image.Image, ts time.Time) (string, error)
}

// AnnotateFunc draws the detected polygon on a frame.
type AnnotateFunc func(img image.Image, polygon []image.Point) image.Image

// Deps holds the collaborators owned by the loop. Source and Store are
// closed when Run returns.
type Deps struct {
	Source   frame.Source
	Detector detect.Detector
	Store    EventStore
	Archiver FrameArchiver
	// Annotate is optional; nil disables the overlay.
	Annotate AnnotateFunc
}

// Options tunes a Loop.
type Options struct {
	// Pace is the delay between iterations. Zero disables pacing.
	Pace time.Duration
	// MaxFrames stops the loop after this many frames. Zero means unlimited.
	MaxFrames uint64
	// RecordDuplicates writes repeat sightings to the duplicates table.
	RecordDuplicates bool
	// Seed marks payloads already in the store as seen before the first frame.
	Seed bool
	// SessionID tags records written by this run. Generated when empty.
	SessionID string
	// OnEvent is called after each new payload is handled.
	OnEvent func(Event)
	Logger  *slog.Logger
	// Now is the clock used when a frame carries no timestamp.
	Now func() time.Time
}

// Event describes one new payload.
type Event struct {
	Payload   string
	FirstSeen time.Time
	Seq       uint64
	// Filename is empty when archiving failed.
	Filename   string
	ArchiveErr error
	Result     storage.RecordResult
	StoreErr   error
}

// Loop is a single-stream capture session. It is not safe for concurrent use.
type Loop struct {
	deps   Deps
	opts   Options
	seen   *session.Seen
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   State
	summary Summary
	ran     bool
}

// New builds a loop. With Options.Seed, payloads already in the store are
// loaded into the session set.
func New(deps Deps, opts Options) (*Loop, error) {
	if deps.Source == nil || deps.Detector == nil || deps.Store == nil || deps.Archiver == nil {
		return nil, fmt.Errorf("capture: source, detector, store and archiver are required")
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	l := &Loop{
		deps:   deps,
		opts:   opts,
		seen:   session.New(),
		logger: logger.With("session_id", opts.SessionID),
		now:    now,
		state:  Running,
	}

	if opts.Seed {
		lister, ok := deps.Store.(PayloadLister)
		if !ok {
			return nil, fmt.Errorf("capture: store cannot list payloads for seeding")
		}
		payloads, err := lister.ListPayloads()
		if err != nil {
			return nil, fmt.Errorf("capture: seeding session: %w", err)
		}
		l.seen.Seed(payloads)
		l.logger.Info("session seeded from store", "payloads", len(payloads))
	}

	return l, nil
}

func (l *Loop) SessionID() string { return l.opts.SessionID }

// Seen exposes the session set.
func (l *Loop) Seen() *session.Seen { return l.seen }

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Summary returns a snapshot of the counters.
func (l *Loop) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary
}

// Run processes frames until the source ends, MaxFrames is reached, or ctx
// is cancelled. Cancellation is checked once per iteration; the iteration in
// progress always completes. The source and store are closed before Run
// returns, on every path. The returned error only reports teardown failures.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	l.mu.Lock()
	if l.ran {
		l.mu.Unlock()
		return Summary{}, ErrAlreadyRun
	}
	l.ran = true
	l.mu.Unlock()

	l.logger.Info("capture loop started")
	reason := l.loop(ctx)

	l.mu.Lock()
	l.state = Stopped
	l.summary.StopReason = reason
	summary := l.summary
	l.mu.Unlock()

	err := l.teardown()
	l.logger.Info("capture loop stopped",
		"reason", reason,
		"frames", summary.Frames,
		"new", summary.New,
		"duplicates", summary.Duplicates,
	)
	return summary, err
}

func (l *Loop) loop(ctx context.Context) StopReason {
	for {
		if ctx.Err() != nil {
			return StopCancelled
		}

		f, err := l.deps.Source.Read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrStreamEnded):
				l.logger.Info("frame source ended", "error", err)
				return StopStreamEnded
			case ctx.Err() != nil:
				return StopCancelled
			default:
				l.logger.Error("frame read failed", "error", err)
				return StopReadError
			}
		}

		l.handleFrame(f)

		if l.opts.MaxFrames > 0 && l.Summary().Frames >= l.opts.MaxFrames {
			return StopMaxFrames
		}

		if l.opts.Pace > 0 {
			select {
			case <-ctx.Done():
				return StopCancelled
			case <-time.After(l.opts.Pace):
			}
		}
	}
}

func (l *Loop) handleFrame(f frame.Frame) {
	l.count(func(s *Summary) { s.Frames++ })

	res, err := l.deps.Detector.Decode(f.Image)
	if err != nil {
		l.count(func(s *Summary) { s.DetectorFailures++ })
		l.logger.Debug("detector failed, treating frame as empty", "seq", f.Seq, "error", err)
		return
	}
	if !res.Found || res.Payload == "" {
		return
	}
	l.count(func(s *Summary) { s.Detections++ })

	ts := f.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	ts = ts.Truncate(time.Second)

	if !l.seen.IsNew(res.Payload) {
		l.handleDuplicate(res.Payload, ts, f.Seq)
		return
	}
	// Only archived frames are ever looked at, so only they get the overlay.
	l.handleNew(res.Payload, ts, f.Seq, l.annotate(f.Image, res.Polygon))
}

// annotate draws the overlay. A panic in the overlay keeps the raw frame.
func (l *Loop) annotate(img image.Image, polygon []image.Point) (out image.Image) {
	if l.deps.Annotate == nil || len(polygon) < 3 {
		return img
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("overlay failed, archiving raw frame", "error", r)
			out = img
		}
	}()
	if annotated := l.deps.Annotate(img, polygon); annotated != nil {
		return annotated
	}
	return img
}

func (l *Loop) handleNew(payload string, ts time.Time, seq uint64, img image.Image) {
	l.count(func(s *Summary) { s.New++ })
	ev := Event{Payload: payload, FirstSeen: ts, Seq: seq}

	// Archive first; a failure here must not block the store write.
	name, err := l.deps.Archiver.Save(img, ts)
	if err != nil {
		ev.ArchiveErr = err
		l.count(func(s *Summary) { s.ArchiveFailures++ })
		l.logger.Error("archiving frame failed", "payload", payload, "seq", seq, "error", err)
	} else {
		ev.Filename = name
	}

	// The archived file is kept even when the store write fails.
	result, err := l.deps.Store.RecordCode(storage.CodeEvent{
		Payload:     payload,
		FirstSeen:   ts,
		SessionID:   l.opts.SessionID,
		ArchiveFile: name,
	})
	switch {
	case err != nil:
		ev.StoreErr = err
		l.count(func(s *Summary) { s.StoreFailures++ })
		l.logger.Error("recording code failed", "payload", payload, "file", name, "error", err)
	case result == storage.AlreadyPresent:
		ev.Result = result
		l.count(func(s *Summary) { s.AlreadyPresent++ })
		l.logger.Debug("code already recorded by an earlier run", "payload", payload)
	default:
		ev.Result = result
		l.logger.Info("new code", "payload", payload, "file", name, "first_seen", ts)
	}

	if l.opts.OnEvent != nil {
		l.opts.OnEvent(ev)
	}
}

func (l *Loop) handleDuplicate(payload string, ts time.Time, seq uint64) {
	l.count(func(s *Summary) { s.Duplicates++ })
	if !l.opts.RecordDuplicates {
		return
	}
	if err := l.deps.Store.RecordDuplicate(payload, ts, l.opts.SessionID); err != nil {
		l.count(func(s *Summary) { s.StoreFailures++ })
		l.logger.Error("recording duplicate failed", "payload", payload, "seq", seq, "error", err)
		return
	}
	l.logger.Debug("duplicate recorded", "payload", payload, "seq", seq)
}

func (l *Loop) count(fn func(*Summary)) {
	l.mu.Lock()
	fn(&l.summary)
	l.mu.Unlock()
}

// teardown releases the source and then the store. Both are attempted even
// if the first fails.
func (l *Loop) teardown() error {
	var errs []error
	if err := l.deps.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing frame source: %w", err))
	}
	if err := l.deps.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing event store: %w", err))
	}
	return errors.Join(errs...)
}
