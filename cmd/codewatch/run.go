package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/codewatch/internal/api"
	"github.com/kalambet/codewatch/internal/archive"
	"github.com/kalambet/codewatch/internal/capture"
	"github.com/kalambet/codewatch/internal/config"
	"github.com/kalambet/codewatch/internal/detect"
	"github.com/kalambet/codewatch/internal/frame"
	"github.com/kalambet/codewatch/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the camera and record new codes",
	Long: `Watch a camera (or replay a directory of frames) and record the first
sighting of every distinct QR code.

Stop with Ctrl-C, or type the quit key (default "q") and press Enter.

Examples:
  codewatch run
  codewatch run --device 0 --width 640 --height 480
  codewatch run --dir ./frames --pattern '*.png' --pace 0 --listen`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := applyRunFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		if cfg.Capture.QuitKey != "" {
			go watchQuitKey(os.Stdin, cfg.Capture.QuitKey, cancel)
		}

		summary, err := runCapture(ctx, cfg, opts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

// runOptions are per-invocation settings that have no config key.
type runOptions struct {
	MaxFrames uint64
	Loop      bool
	Listen    bool
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("source", "", "frame source: camera or dir")
	f.Int("device", 0, "camera device index (/dev/videoN)")
	f.String("dir", "", "replay image files from this directory")
	f.String("pattern", "", "glob for --dir (default *.png)")
	f.Bool("loop", false, "restart the directory replay at the first file")
	f.String("db", "", "path to the SQLite database")
	f.String("out", "", "directory for archived snapshots")
	f.Int("quality", 0, "JPEG quality for snapshots (1-100)")
	f.String("collision", "", "snapshot name collision policy: suffix or overwrite")
	f.Int("width", 0, "requested frame width")
	f.Int("height", 0, "requested frame height")
	f.Duration("pace", 0, "delay between frames (0 disables)")
	f.Uint64("max-frames", 0, "stop after this many frames (0 = unlimited)")
	f.Bool("record-duplicates", false, "record repeat sightings")
	f.Bool("seed", true, "treat payloads already in the database as seen")
	f.Bool("try-harder", false, "spend more time looking for codes in each frame")
	f.Bool("listen", false, "also serve the HTTP read API while capturing")
}

// applyRunFlags overrides cfg with every flag set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) runOptions {
	f := cmd.Flags()
	var opts runOptions

	if f.Changed("source") {
		cfg.Capture.Source, _ = f.GetString("source")
	}
	if f.Changed("dir") {
		cfg.Capture.SourceDir, _ = f.GetString("dir")
		if !f.Changed("source") {
			cfg.Capture.Source = config.SourceDir
		}
	}
	if f.Changed("device") {
		cfg.Capture.DeviceIndex, _ = f.GetInt("device")
	}
	if f.Changed("pattern") {
		cfg.Capture.SourcePattern, _ = f.GetString("pattern")
	}
	if f.Changed("db") {
		cfg.Storage.Path, _ = f.GetString("db")
	}
	if f.Changed("out") {
		cfg.Archive.OutputDir, _ = f.GetString("out")
	}
	if f.Changed("quality") {
		cfg.Archive.JPEGQuality, _ = f.GetInt("quality")
	}
	if f.Changed("collision") {
		cfg.Archive.OnCollision, _ = f.GetString("collision")
	}
	if f.Changed("width") {
		cfg.Capture.FrameWidth, _ = f.GetInt("width")
	}
	if f.Changed("height") {
		cfg.Capture.FrameHeight, _ = f.GetInt("height")
	}
	if f.Changed("pace") {
		d, _ := f.GetDuration("pace")
		cfg.Capture.Pace = d.String()
	}
	if f.Changed("record-duplicates") {
		cfg.Capture.RecordDuplicates, _ = f.GetBool("record-duplicates")
	}
	if f.Changed("seed") {
		cfg.Capture.SeedFromStore, _ = f.GetBool("seed")
	}
	if f.Changed("try-harder") {
		cfg.Capture.TryHarder, _ = f.GetBool("try-harder")
	}

	opts.MaxFrames, _ = f.GetUint64("max-frames")
	opts.Loop, _ = f.GetBool("loop")
	opts.Listen, _ = f.GetBool("listen")
	return opts
}

// openSource builds the configured frame source. Tests replace it.
var openSource = func(cfg config.Config, opts runOptions) (frame.Source, error) {
	switch cfg.Capture.Source {
	case config.SourceDir:
		return frame.OpenDir(frame.DirOptions{
			Dir:     cfg.Capture.SourceDir,
			Pattern: cfg.Capture.SourcePattern,
			Loop:    opts.Loop,
		})
	case config.SourceCamera:
		return openCamera(cfg)
	default:
		return nil, fmt.Errorf("unknown frame source %q", cfg.Capture.Source)
	}
}

// runCapture wires the pipeline from cfg and runs it until the source ends or
// ctx is cancelled. New payloads are printed to out.
func runCapture(ctx context.Context, cfg config.Config, opts runOptions, out io.Writer) (capture.Summary, error) {
	pace, err := cfg.PaceDuration()
	if err != nil {
		return capture.Summary{}, err
	}
	collision, err := archive.ParseCollision(cfg.Archive.OnCollision)
	if err != nil {
		return capture.Summary{}, err
	}

	archiver, err := archive.New(archive.Options{
		Dir:       cfg.Archive.OutputDir,
		Quality:   cfg.Archive.JPEGQuality,
		Collision: collision,
	})
	if err != nil {
		return capture.Summary{}, err
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return capture.Summary{}, fmt.Errorf("opening storage: %w", err)
	}

	printStep("Opening %s source", cfg.Capture.Source)
	src, err := openSource(cfg, opts)
	if err != nil {
		store.Close()
		return capture.Summary{}, err
	}

	loop, err := capture.New(capture.Deps{
		Source:   src,
		Detector: detect.NewQR(detect.QROptions{TryHarder: cfg.Capture.TryHarder}),
		Store:    store,
		Archiver: archiver,
		Annotate: archive.Annotate,
	}, capture.Options{
		Pace:             pace,
		MaxFrames:        opts.MaxFrames,
		RecordDuplicates: cfg.Capture.RecordDuplicates,
		Seed:             cfg.Capture.SeedFromStore,
		OnEvent: func(ev capture.Event) {
			fmt.Fprintln(out, formatEvent(ev))
		},
	})
	if err != nil {
		src.Close()
		store.Close()
		return capture.Summary{}, err
	}
	printSuccess("Capturing (session %s); snapshots in %s", loop.SessionID(), archiver.Dir())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	var summary capture.Summary
	g.Go(func() error {
		// The read API has nothing left to serve once capture stops.
		defer cancelRun()
		var err error
		summary, err = loop.Run(gctx)
		return err
	})

	if opts.Listen {
		readStore, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			cancelRun()
			g.Wait()
			return summary, fmt.Errorf("opening store for the read API: %w", err)
		}
		defer readStore.Close()

		handler := api.NewAppHandler(api.AppDeps{
			Store:      readStore,
			ArchiveDir: archiver.Dir(),
			Token:      cfg.Server.Token,
		})
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
		g.Go(func() error {
			return serveHTTP(gctx, addr, handler)
		})
	}

	err = g.Wait()
	return summary, err
}

// serveHTTP runs an HTTP server until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("read API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// watchQuitKey cancels the run when a line equal to key is read from r.
func watchQuitKey(r io.Reader, key string, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), key) {
			slog.Info("quit key received")
			cancel()
			return
		}
	}
}
