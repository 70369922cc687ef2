package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/tasklift/tasklift/pkg/genai"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start tasklift as an MCP server",
	Long: `Starts tasklift as a Model Context Protocol (MCP) server so AI
assistants can enrich the user's task list through the same cached,
rate-protected pipeline the CLI uses.

Transports:
  stdio (default) - For local desktop apps (Claude Desktop, Cursor)
  http            - For remote/cloud deployments

Tools exposed:
  motivate_user    - Motivational blurb for a pending-task count
  refine_task      - Classify a task title into metadata
  generate_kit     - Build a reusable checklist template
  breakdown_task   - Split a task into subtasks

Example:
  # Local stdio server
  tasklift mcp

  # Remote HTTP server
  tasklift mcp --transport http --port 8081

Configure in Claude Desktop (claude_desktop_config.json):
  {
    "mcpServers": {
      "tasklift": {
        "command": "tasklift",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	// Transport settings
	mcpCmd.Flags().String("transport", "stdio", "Transport type: stdio or http")
	mcpCmd.Flags().Int("port", 8081, "HTTP server port (for http transport)")
	mcpCmd.Flags().String("host", "0.0.0.0", "HTTP server host (for http transport)")
}

// MCPServer wraps the MCP server around the enrichment service.
type MCPServer struct {
	svc *genai.Service
}

func runMCP(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")

	svc, _, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	mcpSrv := &MCPServer{svc: svc}

	s := server.NewMCPServer(
		"tasklift",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	mcpSrv.registerTools(s)

	switch transport {
	case "stdio":
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}

	case "http":
		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("tasklift MCP server starting on http://%s\n", addr)
		fmt.Printf("  Endpoint: http://%s/mcp\n", addr)
		fmt.Printf("  Health:   http://%s/health\n", addr)
		fmt.Println()

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok","server":"tasklift-mcp"}`))
		})
		mcpHandler := server.NewStreamableHTTPServer(s, server.WithStateful(true))
		mux.Handle("/mcp", mcpHandler)

		httpServer := &http.Server{
			Addr:    addr,
			Handler: mux,
		}
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}

	default:
		return fmt.Errorf("unsupported transport: %s (use 'stdio' or 'http')", transport)
	}

	return nil
}

func (m *MCPServer) registerTools(s *server.MCPServer) {
	motivateTool := mcp.NewTool("motivate_user",
		mcp.WithDescription(`Generate one short motivational sentence for the user's task list.

Cached for a few minutes per pending-task count, so calling it on every
list refresh is cheap.`),
		mcp.WithNumber("pending_count",
			mcp.Required(),
			mcp.Description("Number of tasks still pending"),
		),
	)
	s.AddTool(motivateTool, m.handleMotivate)

	refineTool := mcp.NewTool("refine_task",
		mcp.WithDescription(`Classify a task title into category, tags, urgency, and any time
expression it contains.

Best effort: shares a small per-minute call budget, and returns neutral
defaults when the budget is exhausted instead of blocking.`),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("The task title, e.g. 'buy milk tomorrow morning'"),
		),
	)
	s.AddTool(refineTool, m.handleRefine)

	kitTool := mcp.NewTool("generate_kit",
		mcp.WithDescription(`Generate a reusable checklist template (5-15 items) from a short
description, e.g. 'weekend camping trip'. Cached for 24 hours per
normalized prompt.`),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Short description of the checklist to generate"),
		),
	)
	s.AddTool(kitTool, m.handleGenerateKit)

	breakdownTool := mcp.NewTool("breakdown_task",
		mcp.WithDescription(`Split a large task into 3-7 concrete subtasks. Cached for 30 days
per normalized task.`),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("The task to break down, e.g. 'plan the office move'"),
		),
	)
	s.AddTool(breakdownTool, m.handleBreakdown)
}

func (m *MCPServer) handleMotivate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := int(request.GetFloat("pending_count", -1))
	if pending < 0 {
		return mcp.NewToolResultError("pending_count must be a non-negative number"), nil
	}

	blurb, err := m.svc.Motivate(ctx, pending)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("motivation failed: %v", err)), nil
	}
	return mcp.NewToolResultText(blurb), nil
}

func (m *MCPServer) handleRefine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := request.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}

	md, err := m.svc.Refine(ctx, title)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refinement failed: %v", err)), nil
	}

	out, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleGenerateKit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := request.GetString("prompt", "")
	if prompt == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}

	kit, err := m.svc.GenerateKit(ctx, prompt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("kit generation failed: %v", err)), nil
	}

	out, err := json.Marshal(kit)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (m *MCPServer) handleBreakdown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := request.GetString("task", "")
	if task == "" {
		return mcp.NewToolResultError("task is required"), nil
	}

	steps, err := m.svc.Breakdown(ctx, task)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("breakdown failed: %v", err)), nil
	}

	out, err := json.Marshal(map[string][]string{"steps": steps})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
