// Package config loads codewatch settings from a JSON file backend and
// CODEWATCH_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Source kinds.
const (
	SourceCamera = "camera"
	SourceDir    = "dir"
)

type Config struct {
	Storage StorageConfig
	Archive ArchiveConfig
	Capture CaptureConfig
	Server  ServerConfig
	Log     LogConfig
}

type StorageConfig struct {
	Path string
}

type ArchiveConfig struct {
	OutputDir   string
	JPEGQuality int
	OnCollision string
}

type CaptureConfig struct {
	Source           string
	DeviceIndex      int
	FrameWidth       int
	FrameHeight      int
	SourceDir        string
	SourcePattern    string
	Pace             string
	QuitKey          string
	RecordDuplicates bool
	SeedFromStore    bool
	TryHarder        bool
}

type ServerConfig struct {
	Port int
	// Token enables bearer auth on the HTTP read API. Env only.
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "codes.db"),
		},
		Archive: ArchiveConfig{
			OutputDir:   filepath.Join(dataDir, "captured_frames"),
			JPEGQuality: 60,
			OnCollision: "suffix",
		},
		Capture: CaptureConfig{
			Source:        SourceCamera,
			DeviceIndex:   1,
			FrameWidth:    1280,
			FrameHeight:   720,
			SourcePattern: "*.png",
			Pace:          "100ms",
			QuitKey:       "q",
			SeedFromStore: true,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at ConfigFilePath, then applies
// CODEWATCH_* environment overrides. Secrets are read from the environment only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// PaceDuration parses Capture.Pace.
func (c Config) PaceDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Capture.Pace)
	if err != nil {
		return 0, fmt.Errorf("capture.pace: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("capture.pace: must not be negative, got %s", d)
	}
	return d, nil
}

// Validate checks the settings a capture run depends on.
func (c Config) Validate() error {
	switch c.Capture.Source {
	case SourceCamera:
		if c.Capture.DeviceIndex < 0 {
			return fmt.Errorf("capture.device_index: must not be negative, got %d", c.Capture.DeviceIndex)
		}
	case SourceDir:
		if c.Capture.SourceDir == "" {
			return fmt.Errorf("capture.source_dir: required when capture.source is %q", SourceDir)
		}
	default:
		return fmt.Errorf("capture.source: unknown kind %q (want %q or %q)", c.Capture.Source, SourceCamera, SourceDir)
	}
	if c.Capture.FrameWidth < 0 || c.Capture.FrameHeight < 0 {
		return fmt.Errorf("capture frame size: must not be negative, got %dx%d", c.Capture.FrameWidth, c.Capture.FrameHeight)
	}
	if c.Archive.JPEGQuality < 1 || c.Archive.JPEGQuality > 100 {
		return fmt.Errorf("archive.jpeg_quality: must be in 1..100, got %d", c.Archive.JPEGQuality)
	}
	switch c.Archive.OnCollision {
	case "", "suffix", "overwrite":
	default:
		return fmt.Errorf("archive.on_collision: unknown policy %q (want suffix or overwrite)", c.Archive.OnCollision)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path: required")
	}
	if c.Archive.OutputDir == "" {
		return fmt.Errorf("archive.output_dir: required")
	}
	if _, err := c.PaceDuration(); err != nil {
		return err
	}
	return nil
}
