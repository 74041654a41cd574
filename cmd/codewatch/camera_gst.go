//go:build cgo && !nocamera

package main

import (
	"github.com/kalambet/codewatch/internal/config"
	"github.com/kalambet/codewatch/internal/frame"
	"github.com/kalambet/codewatch/internal/frame/camera"
)

const cameraSupported = true

func openCamera(cfg config.Config) (frame.Source, error) {
	return camera.Open(camera.Config{
		DeviceIndex: cfg.Capture.DeviceIndex,
		Width:       cfg.Capture.FrameWidth,
		Height:      cfg.Capture.FrameHeight,
	})
}
