package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/codewatch/internal/capture"
	"github.com/kalambet/codewatch/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// formatEvent renders the console line for a newly seen payload.
func formatEvent(ev capture.Event) string {
	tag := colorize(colorGreen, "[NEW]")
	switch {
	case ev.Result == storage.AlreadyPresent && ev.StoreErr == nil:
		tag = colorize(colorCyan, "[KNOWN]")
	case ev.StoreErr != nil:
		tag = colorize(colorYellow, "[NEW, not recorded]")
	}

	saved := "saved " + ev.Filename
	if ev.ArchiveErr != nil {
		saved = colorize(colorYellow, "snapshot failed")
	}
	return fmt.Sprintf("%s %q → %s", tag, ev.Payload, saved)
}

func printSummary(w io.Writer, s capture.Summary) {
	fmt.Fprintf(w, "%s %d frames, %d new, %d repeats (stopped: %s)\n",
		colorize(colorBold, "Summary:"), s.Frames, s.New, s.Duplicates, s.StopReason)
	if s.AlreadyPresent > 0 {
		fmt.Fprintf(w, "  %d payloads were already recorded by an earlier run\n", s.AlreadyPresent)
	}
	if s.DetectorFailures > 0 {
		fmt.Fprintf(w, "  %d frames could not be decoded\n", s.DetectorFailures)
	}
	if s.ArchiveFailures > 0 || s.StoreFailures > 0 {
		fmt.Fprintf(w, "  %s %d snapshot failures, %d store failures\n",
			colorize(colorYellow, "⚠"), s.ArchiveFailures, s.StoreFailures)
	}
}
