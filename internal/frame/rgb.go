package frame

import (
	"fmt"
	"image"
)

// RGBToRGBA converts packed RGB rows into an RGBA image. Rows may carry
// stride padding, which is derived from the buffer length.
func RGBToRGBA(data []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame dimensions unknown (%dx%d)", width, height)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty buffer")
	}
	stride := len(data) / height
	if stride < width*3 {
		return nil, fmt.Errorf("invalid RGB data size: got %d, expected at least %d", len(data), width*height*3)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := data[y*stride:]
		pix := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			pix[x*4+0] = row[x*3+0]
			pix[x*4+1] = row[x*3+1]
			pix[x*4+2] = row[x*3+2]
			pix[x*4+3] = 255
		}
	}
	return img, nil
}
