package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/codewatch/internal/config"
	"github.com/kalambet/codewatch/internal/storage"
)

// --- codes ---

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Inspect recorded codes",
}

var codesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded codes, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		store, err := openConfiguredStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return listCodes(cmd.OutOrStdout(), store, limit, offset)
	},
}

var codesShowCmd = &cobra.Command{
	Use:   "show <payload>",
	Short: "Show when a payload was first seen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConfiguredStore()
		if err != nil {
			return err
		}
		defer store.Close()

		code, err := store.GetCode(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("payload %q has not been seen", args[0])
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(code)
	},
}

var codesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all codes and duplicate observations as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		store, err := openConfiguredStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		n, err := exportJSONL(w, store)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d records to %s", n, output)
		}
		return nil
	},
}

func init() {
	codesListCmd.Flags().Int("limit", 50, "maximum number of codes to list")
	codesListCmd.Flags().Int("offset", 0, "number of codes to skip")
	codesExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	codesCmd.AddCommand(codesListCmd)
	codesCmd.AddCommand(codesShowCmd)
	codesCmd.AddCommand(codesExportCmd)
}

func openConfiguredStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func listCodes(w io.Writer, store *storage.Store, limit, offset int) error {
	codes, err := store.ListCodes(limit, offset)
	if err != nil {
		return fmt.Errorf("listing codes: %w", err)
	}
	if len(codes) == 0 {
		fmt.Fprintln(w, "No codes recorded.")
		return nil
	}
	for _, c := range codes {
		fmt.Fprintf(w, "%s  %q\n", colorize(colorCyan, c.FirstSeen.Format(time.RFC3339)), c.Payload)
	}
	return nil
}

const exportPageSize = 500

// exportJSONL writes one {"type", "data"} record per line and returns the count.
func exportJSONL(w io.Writer, store *storage.Store) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for offset := 0; ; offset += exportPageSize {
		codes, err := store.ListCodes(exportPageSize, offset)
		if err != nil {
			return n, fmt.Errorf("listing codes: %w", err)
		}
		for _, c := range codes {
			if err := enc.Encode(map[string]any{"type": "code", "data": c}); err != nil {
				return n, err
			}
			n++
		}
		if len(codes) < exportPageSize {
			break
		}
	}

	// A negative limit is unbounded in SQLite.
	dups, err := store.ListDuplicates("", -1)
	if err != nil {
		return n, fmt.Errorf("listing duplicates: %w", err)
	}
	for _, d := range dups {
		if err := enc.Encode(map[string]any{"type": "duplicate", "data": d}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and whether the read API is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		st, err := fetchStatus(ctx, newAPIClient(cfg))
		if err != nil || !st.Running {
			printStatus("Server", "stopped")
		} else {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printStatus("Codes", "%s", st.Codes)
		}
		printStatus("Database", "%s", cfg.Storage.Path)
		printStatus("Snapshots", "%s", cfg.Archive.OutputDir)
		printStatus("Source", "%s", describeSource(cfg))
		return nil
	},
}

func describeSource(cfg config.Config) string {
	if cfg.Capture.Source == config.SourceDir {
		return fmt.Sprintf("dir %s (%s)", cfg.Capture.SourceDir, cfg.Capture.SourcePattern)
	}
	desc := fmt.Sprintf("camera /dev/video%d (%dx%d)", cfg.Capture.DeviceIndex, cfg.Capture.FrameWidth, cfg.Capture.FrameHeight)
	if !cameraSupported {
		desc += " [not built in]"
	}
	return desc
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
