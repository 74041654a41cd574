package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/codewatch/internal/api"
	"github.com/kalambet/codewatch/internal/capture"
	"github.com/kalambet/codewatch/internal/config"
	"github.com/kalambet/codewatch/internal/frame"
	"github.com/kalambet/codewatch/internal/storage"
)

var ctx = context.Background()

func openMemStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(fmt.Errorf("opening: %w", frame.ErrDeviceUnavailable)); got != 2 {
		t.Errorf("device unavailable exit code = %d, want 2", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Errorf("generic exit code = %d, want 1", got)
	}
}

func TestFormatEvent(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	tests := []struct {
		ev   capture.Event
		want string
	}{
		{
			capture.Event{Payload: "ABC123", Filename: "20250301_100000.jpg", Result: storage.Inserted},
			`[NEW] "ABC123" → saved 20250301_100000.jpg`,
		},
		{
			capture.Event{Payload: "X", Filename: "a.jpg", Result: storage.AlreadyPresent},
			`[KNOWN] "X" → saved a.jpg`,
		},
		{
			capture.Event{Payload: "X", ArchiveErr: errors.New("disk full")},
			`[NEW] "X" → snapshot failed`,
		},
		{
			capture.Event{Payload: "X", Filename: "a.jpg", StoreErr: errors.New("locked")},
			`[NEW, not recorded] "X" → saved a.jpg`,
		},
	}
	for _, tt := range tests {
		if got := formatEvent(tt.ev); got != tt.want {
			t.Errorf("formatEvent(%+v) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var buf bytes.Buffer
	printSummary(&buf, capture.Summary{Frames: 10, New: 2, Duplicates: 5, StopReason: capture.StopStreamEnded, StoreFailures: 1})
	out := buf.String()
	for _, want := range []string{"10 frames", "2 new", "5 repeats", "stream_ended", "1 store failures"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary %q missing %q", out, want)
		}
	}
}

func TestApplyRunFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	if err := cmd.ParseFlags([]string{
		"--dir", "/frames",
		"--pace", "250ms",
		"--quality", "90",
		"--max-frames", "7",
		"--record-duplicates",
		"--seed=false",
		"--listen",
	}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	cfg := config.Config{}
	cfg.Capture.Source = config.SourceCamera
	cfg.Capture.DeviceIndex = 1
	cfg.Capture.SeedFromStore = true

	opts := applyRunFlags(cmd, &cfg)

	if cfg.Capture.Source != config.SourceDir || cfg.Capture.SourceDir != "/frames" {
		t.Errorf("source = %q %q, want dir /frames", cfg.Capture.Source, cfg.Capture.SourceDir)
	}
	if cfg.Capture.Pace != "250ms" {
		t.Errorf("Pace = %q, want 250ms", cfg.Capture.Pace)
	}
	if cfg.Archive.JPEGQuality != 90 {
		t.Errorf("JPEGQuality = %d, want 90", cfg.Archive.JPEGQuality)
	}
	if !cfg.Capture.RecordDuplicates || cfg.Capture.SeedFromStore {
		t.Errorf("duplicates/seed = %v/%v, want true/false", cfg.Capture.RecordDuplicates, cfg.Capture.SeedFromStore)
	}
	if cfg.Capture.DeviceIndex != 1 {
		t.Errorf("unset --device changed DeviceIndex to %d", cfg.Capture.DeviceIndex)
	}
	if opts.MaxFrames != 7 || !opts.Listen {
		t.Errorf("opts = %+v", opts)
	}
}

func TestWatchQuitKey(t *testing.T) {
	cancelled := false
	watchQuitKey(strings.NewReader("hello\n  Q  \nq\n"), "q", func() { cancelled = true })
	if !cancelled {
		t.Error("quit key did not cancel")
	}

	cancelled = false
	watchQuitKey(strings.NewReader("quit\nx\n"), "q", func() { cancelled = true })
	if cancelled {
		t.Error("non-matching input cancelled the run")
	}
}

func TestListCodes(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	store := openMemStore(t)
	var buf bytes.Buffer
	if err := listCodes(&buf, store, 10, 0); err != nil {
		t.Fatalf("listCodes: %v", err)
	}
	if !strings.Contains(buf.String(), "No codes recorded.") {
		t.Errorf("empty output = %q", buf.String())
	}

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.RecordIfAbsent("ABC123", ts, "")
	buf.Reset()
	if err := listCodes(&buf, store, 10, 0); err != nil {
		t.Fatalf("listCodes: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `2025-03-01T10:00:00Z  "ABC123"` {
		t.Errorf("output = %q", got)
	}
}

func TestExportJSONL(t *testing.T) {
	store := openMemStore(t)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.RecordIfAbsent("A", ts, "s")
	store.RecordIfAbsent("B", ts.Add(time.Second), "s")
	store.RecordDuplicate("A", ts.Add(2*time.Second), "s")

	var buf bytes.Buffer
	n, err := exportJSONL(&buf, store)
	if err != nil {
		t.Fatalf("exportJSONL: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 JSONL lines, got %d", len(lines))
	}
	var types []string
	for _, line := range lines {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("invalid JSONL: %v", err)
		}
		types = append(types, record["type"].(string))
	}
	if strings.Join(types, ",") != "code,code,duplicate" {
		t.Errorf("types = %v", types)
	}
}

func TestFetchStatus(t *testing.T) {
	store := openMemStore(t)
	store.RecordIfAbsent("A", time.Now(), "")
	store.RecordIfAbsent("B", time.Now(), "")

	srv := httptest.NewServer(api.NewAppHandler(api.AppDeps{Store: store, Token: "tok"}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, token: "tok", httpClient: srv.Client()}
	st, err := fetchStatus(ctx, client)
	if err != nil {
		t.Fatalf("fetchStatus: %v", err)
	}
	if !st.Running || st.Codes != "2" {
		t.Errorf("status = %+v, want running with 2 codes", st)
	}

	client.token = "wrong"
	st, err = fetchStatus(ctx, client)
	if err != nil {
		t.Fatalf("fetchStatus: %v", err)
	}
	if !st.Running || st.Codes != "unknown" {
		t.Errorf("status with bad token = %+v", st)
	}
}

func TestFetchStatus_Stopped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := &apiClient{baseURL: srv.URL, httpClient: &http.Client{Timeout: time.Second}}
	if _, err := fetchStatus(ctx, client); err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("err = %v, want not reachable", err)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "bad-token", httpClient: ts.Client()}
	resp, err := client.get(ctx, "/codes")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4100" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4100 in ShowAll output")
	}
}

func TestDescribeSource(t *testing.T) {
	cfg := config.Config{}
	cfg.Capture.Source = config.SourceCamera
	cfg.Capture.DeviceIndex = 2
	cfg.Capture.FrameWidth, cfg.Capture.FrameHeight = 640, 480
	want := "camera /dev/video2 (640x480)"
	if !cameraSupported {
		want += " [not built in]"
	}
	if got := describeSource(cfg); got != want {
		t.Errorf("describeSource = %q, want %q", got, want)
	}
}

func TestRunCapture_OpenFailureClosesStore(t *testing.T) {
	old := openSource
	defer func() { openSource = old }()
	openSource = func(config.Config, runOptions) (frame.Source, error) {
		return nil, fmt.Errorf("%w: /dev/video9", frame.ErrDeviceUnavailable)
	}

	dir := t.TempDir()
	cfg := config.Config{}
	cfg.Storage.Path = filepath.Join(dir, "codes.db")
	cfg.Archive.OutputDir = filepath.Join(dir, "out")
	cfg.Archive.JPEGQuality = 60
	cfg.Capture.Pace = "0s"

	_, err := runCapture(ctx, cfg, runOptions{}, &bytes.Buffer{})
	if !errors.Is(err, frame.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if exitCode(err) != 2 {
		t.Errorf("exitCode = %d, want 2", exitCode(err))
	}

	// The database must be reopenable, i.e. it was closed.
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	store.Close()
	if _, err := os.Stat(cfg.Archive.OutputDir); err != nil {
		t.Errorf("archive dir not created: %v", err)
	}
}
