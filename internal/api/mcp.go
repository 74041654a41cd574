package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/codewatch/internal/storage"
)

const recentResourceSize = 20

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   CodeReader
	Version string
}

// NewMCPServer creates an MCP server exposing the code ledger.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"codewatch",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("codewatch records every distinct QR code seen by a camera, with the time it was first seen."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_codes",
			mcp.WithDescription("List recorded codes in order of first sighting, oldest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of codes (default 50, max 500)")),
			mcp.WithNumber("offset", mcp.Description("Number of codes to skip")),
		),
		mcpListCodes(deps),
	)

	s.AddTool(
		mcp.NewTool("get_code",
			mcp.WithDescription("Look up when a payload was first seen."),
			mcp.WithString("payload", mcp.Description("Exact decoded payload"), mcp.Required()),
		),
		mcpGetCode(deps),
	)

	s.AddTool(
		mcp.NewTool("list_duplicates",
			mcp.WithDescription("List repeat sightings, newest first. Only populated when duplicate recording is enabled."),
			mcp.WithString("payload", mcp.Description("Restrict to one payload")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of observations (default 50, max 500)")),
		),
		mcpListDuplicates(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"codes://recent",
			"Recent Codes",
			mcp.WithResourceDescription("The 20 most recently first-seen codes"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func mcpListCodes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := clampLimit(req.GetInt("limit", defaultPageSize))
		offset := req.GetInt("offset", 0)
		if offset < 0 {
			offset = 0
		}

		codes, err := deps.Store.ListCodes(limit, offset)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list codes: %v", err)), nil
		}
		if codes == nil {
			codes = []storage.CodeEvent{}
		}
		return mcpJSON(codes)
	}
}

func mcpGetCode(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := req.RequireString("payload")
		if err != nil {
			return mcpError("payload is required"), nil
		}

		code, err := deps.Store.GetCode(payload)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("payload %q has not been seen", payload)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get code: %v", err)), nil
		}
		return mcpJSON(code)
	}
}

func mcpListDuplicates(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := req.GetString("payload", "")
		limit := clampLimit(req.GetInt("limit", defaultPageSize))

		dups, err := deps.Store.ListDuplicates(payload, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list duplicates: %v", err)), nil
		}
		if dups == nil {
			dups = []storage.DuplicateObservation{}
		}
		return mcpJSON(dups)
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		codes, err := deps.Store.ListRecentCodes(recentResourceSize)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent codes: %w", err)
		}
		if codes == nil {
			codes = []storage.CodeEvent{}
		}

		b, err := json.Marshal(codes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal codes: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
