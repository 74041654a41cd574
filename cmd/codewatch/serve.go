package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/codewatch/internal/api"
	"github.com/kalambet/codewatch/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded codes over HTTP (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				printWarning("closing storage: %v", err)
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Server.Token == "" {
			printWarning("CODEWATCH_SERVER_TOKEN is not set; the read API is unauthenticated")
		}

		handler := api.NewAppHandler(api.AppDeps{
			Store:      store,
			ArchiveDir: cfg.Archive.OutputDir,
			Token:      cfg.Server.Token,
		})
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
		printSuccess("codewatch %s listening on %s", version, addr)
		err = serveHTTP(ctx, addr, handler)
		printStep("shutting down")
		return err
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve recorded codes to MCP clients over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Version: version})
		slog.Info("MCP server started (stdio transport)")
		if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}
