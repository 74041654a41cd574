// Package frame defines the frame stream consumed by the capture loop.
package frame

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrDeviceUnavailable is returned when a source cannot be opened.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrStreamEnded is returned by Read once the stream is exhausted or disconnected.
	ErrStreamEnded = errors.New("stream ended")
)

// Frame is a single decoded video frame.
type Frame struct {
	// Seq is a per-source counter starting at 1.
	Seq uint64
	// Timestamp is when the frame was captured.
	Timestamp time.Time
	Image     image.Image
	// Source identifies where the frame came from (device path, file name).
	Source string
}

// Source yields frames on demand. Read blocks until the next frame is
// available; a read error is terminal. Close is safe to call more than once.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}
