package detect

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// QR decodes QR codes with gozxing.
type QR struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// QROptions tunes the decoder.
type QROptions struct {
	// TryHarder spends more time looking for a code in each frame.
	TryHarder bool
}

func NewQR(opts QROptions) *QR {
	hints := make(map[gozxing.DecodeHintType]interface{})
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &QR{hints: hints}
}

// Decode returns NotFound with a nil error when the frame holds no QR code.
// Every other failure, including a panic inside the decoder, is returned
// wrapped in ErrDetectorFailure.
func (q *QR) Decode(img image.Image) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = NotFound, fmt.Errorf("%w: decoder panic: %v", ErrDetectorFailure, r)
		}
	}()

	if img == nil {
		return NotFound, fmt.Errorf("%w: nil image", ErrDetectorFailure)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return NotFound, fmt.Errorf("%w: building bitmap: %v", ErrDetectorFailure, err)
	}

	// QRCodeReader is not safe for concurrent use.
	reader := qrcode.NewQRCodeReader()
	out, err := reader.Decode(bmp, q.hints)
	if err != nil {
		var nf gozxing.NotFoundException
		if errors.As(err, &nf) {
			return NotFound, nil
		}
		return NotFound, fmt.Errorf("%w: %v", ErrDetectorFailure, err)
	}

	return Result{
		Found:   true,
		Payload: out.GetText(),
		Polygon: polygon(out.GetResultPoints()),
	}, nil
}

func polygon(points []gozxing.ResultPoint) []image.Point {
	if len(points) < 3 {
		return nil
	}
	poly := make([]image.Point, 0, len(points))
	for _, p := range points {
		poly = append(poly, image.Point{
			X: int(math.Round(p.GetX())),
			Y: int(math.Round(p.GetY())),
		})
	}
	return poly
}
