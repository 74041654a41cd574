// Package camera captures frames from a V4L2 device through a GStreamer pipeline.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGB) → appsink
//
// Frames are pulled synchronously from the appsink, so Read blocks until the
// next frame or end of stream. The appsink keeps only the latest buffer.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/kalambet/codewatch/internal/frame"
)

const startTimeout = 5 * time.Second

// Config selects the device and resolution. Zero width or height falls back
// to 1280x720. videoscale makes the device output match the requested size.
type Config struct {
	DeviceIndex int
	Width       int
	Height      int
}

// DevicePath returns the V4L2 node for the configured index.
func (c Config) DevicePath() string {
	return fmt.Sprintf("/dev/video%d", c.DeviceIndex)
}

// Caps returns the raw RGB caps string requested from the pipeline.
func (c Config) Caps() string {
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", c.Width, c.Height)
}

// Source is a live camera stream.
type Source struct {
	cfg      Config
	pipeline *gst.Pipeline
	sink     *app.Sink
	seq      uint64
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open builds and starts the pipeline. Any failure before the pipeline
// reaches PLAYING is reported as frame.ErrDeviceUnavailable.
func Open(cfg Config) (*Source, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1280, 720
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("%w: creating pipeline: %v", frame.ErrDeviceUnavailable, err)
	}

	s := &Source{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   slog.Default(),
	}
	if err := s.build(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", frame.ErrDeviceUnavailable, err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: starting pipeline on %s: %v", frame.ErrDeviceUnavailable, cfg.DevicePath(), err)
	}
	if err := s.waitPlaying(startTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %s: %v", frame.ErrDeviceUnavailable, cfg.DevicePath(), err)
	}

	s.logger.Info("camera: pipeline playing", "device", cfg.DevicePath(), "caps", cfg.Caps())
	return s, nil
}

// build creates and links the elements into the pipeline.
func (s *Source) build() error {
	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("creating v4l2src: %w", err)
	}
	src.SetProperty("device", s.cfg.DevicePath())

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("creating videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("creating videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("creating capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(s.cfg.Caps()))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("creating appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := s.pipeline.AddMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("adding elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("linking elements: %w", err)
	}
	s.sink = sink
	return nil
}

func (s *Source) waitPlaying(timeout time.Duration) error {
	bus := s.pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("pipeline error: %s", gerr.Error())
		case gst.MessageEOS:
			return fmt.Errorf("end of stream before first frame")
		case gst.MessageStateChanged:
			if msg.Source() == s.pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					return nil
				}
			}
		}
	}
	return fmt.Errorf("pipeline did not reach PLAYING within %s", timeout)
}

// Read blocks for the next sample. A nil sample means the appsink reached
// end of stream or the pipeline stopped, which ends the stream.
func (s *Source) Read(ctx context.Context) (frame.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return frame.Frame{}, err
		}

		sample := s.sink.PullSample()
		if sample == nil {
			return frame.Frame{}, fmt.Errorf("%w: %s", frame.ErrStreamEnded, s.cfg.DevicePath())
		}
		buffer := sample.GetBuffer()
		if buffer == nil {
			s.logger.Warn("camera: sample without buffer, skipping frame")
			continue
		}

		mapInfo := buffer.Map(gst.MapRead)
		data := mapInfo.Bytes()
		img, err := frame.RGBToRGBA(data, s.cfg.Width, s.cfg.Height)
		buffer.Unmap()
		if err != nil {
			s.logger.Warn("camera: unusable buffer, skipping frame", "error", err)
			continue
		}

		s.seq++
		return frame.Frame{
			Seq:       s.seq,
			Timestamp: time.Now(),
			Image:     img,
			Source:    s.cfg.DevicePath(),
		}, nil
	}
}

// Close stops the pipeline and releases the device. The Go wrappers drop
// their GObject references on finalization.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if err := s.pipeline.SetState(gst.StateNull); err != nil {
			s.closeErr = fmt.Errorf("stopping pipeline: %w", err)
		}
	})
	return s.closeErr
}
