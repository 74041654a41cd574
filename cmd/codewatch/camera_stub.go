//go:build !cgo || nocamera

package main

import (
	"fmt"

	"github.com/kalambet/codewatch/internal/config"
	"github.com/kalambet/codewatch/internal/frame"
)

const cameraSupported = false

// openCamera is used by builds without GStreamer. Only the dir source works.
func openCamera(cfg config.Config) (frame.Source, error) {
	return nil, fmt.Errorf("%w: /dev/video%d: built without camera support, use --source dir",
		frame.ErrDeviceUnavailable, cfg.Capture.DeviceIndex)
}
