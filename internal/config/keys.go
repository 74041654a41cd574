package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "storage.path", typ: kString, env: "CODEWATCH_STORAGE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Storage.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Path },
	},
	{
		key: "archive.output_dir", typ: kString, env: "CODEWATCH_ARCHIVE_OUTPUT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Archive.OutputDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.OutputDir },
	},
	{
		key: "archive.jpeg_quality", typ: kInt, env: "CODEWATCH_ARCHIVE_JPEG_QUALITY",
		apply:   func(cfg *Config, v any) { cfg.Archive.JPEGQuality = v.(int) },
		extract: func(cfg Config) any { return cfg.Archive.JPEGQuality },
	},
	{
		key: "archive.on_collision", typ: kString, env: "CODEWATCH_ARCHIVE_ON_COLLISION",
		apply:   func(cfg *Config, v any) { cfg.Archive.OnCollision = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.OnCollision },
	},
	{
		key: "capture.source", typ: kString, env: "CODEWATCH_CAPTURE_SOURCE",
		apply:   func(cfg *Config, v any) { cfg.Capture.Source = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.Source },
	},
	{
		key: "capture.device_index", typ: kInt, env: "CODEWATCH_CAPTURE_DEVICE_INDEX",
		apply:   func(cfg *Config, v any) { cfg.Capture.DeviceIndex = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.DeviceIndex },
	},
	{
		key: "capture.frame_width", typ: kInt, env: "CODEWATCH_CAPTURE_FRAME_WIDTH",
		apply:   func(cfg *Config, v any) { cfg.Capture.FrameWidth = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.FrameWidth },
	},
	{
		key: "capture.frame_height", typ: kInt, env: "CODEWATCH_CAPTURE_FRAME_HEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Capture.FrameHeight = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.FrameHeight },
	},
	{
		key: "capture.source_dir", typ: kString, env: "CODEWATCH_CAPTURE_SOURCE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Capture.SourceDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.SourceDir },
	},
	{
		key: "capture.source_pattern", typ: kString, env: "CODEWATCH_CAPTURE_SOURCE_PATTERN",
		apply:   func(cfg *Config, v any) { cfg.Capture.SourcePattern = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.SourcePattern },
	},
	{
		key: "capture.pace", typ: kString, env: "CODEWATCH_CAPTURE_PACE",
		apply:   func(cfg *Config, v any) { cfg.Capture.Pace = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.Pace },
	},
	{
		key: "capture.quit_key", typ: kString, env: "CODEWATCH_CAPTURE_QUIT_KEY",
		apply:   func(cfg *Config, v any) { cfg.Capture.QuitKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.QuitKey },
	},
	{
		key: "capture.record_duplicates", typ: kBool, env: "CODEWATCH_CAPTURE_RECORD_DUPLICATES",
		apply:   func(cfg *Config, v any) { cfg.Capture.RecordDuplicates = v.(bool) },
		extract: func(cfg Config) any { return cfg.Capture.RecordDuplicates },
	},
	{
		key: "capture.seed_from_store", typ: kBool, env: "CODEWATCH_CAPTURE_SEED_FROM_STORE",
		apply:   func(cfg *Config, v any) { cfg.Capture.SeedFromStore = v.(bool) },
		extract: func(cfg Config) any { return cfg.Capture.SeedFromStore },
	},
	{
		key: "capture.try_harder", typ: kBool, env: "CODEWATCH_CAPTURE_TRY_HARDER",
		apply:   func(cfg *Config, v any) { cfg.Capture.TryHarder = v.(bool) },
		extract: func(cfg Config) any { return cfg.Capture.TryHarder },
	},
	{
		key: "server.port", typ: kInt, env: "CODEWATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "CODEWATCH_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "log.level", typ: kString, env: "CODEWATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
