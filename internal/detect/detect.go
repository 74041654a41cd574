// Package detect decodes machine-readable codes from frames.
package detect

import (
	"errors"
	"image"
)

// ErrDetectorFailure wraps any decode failure other than "no code found".
var ErrDetectorFailure = errors.New("detector failure")

// Result is one decode attempt. Found is false when the frame holds no code.
type Result struct {
	Found   bool
	Payload string
	// Polygon is the code's outline in frame coordinates. It may be empty
	// when the decoder reports too few points to draw.
	Polygon []image.Point
}

// NotFound is the zero Result.
var NotFound = Result{}

// Detector decodes at most one code per frame.
type Detector interface {
	Decode(img image.Image) (Result, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(img image.Image) (Result, error)

func (f DetectorFunc) Decode(img image.Image) (Result, error) {
	return f(img)
}
