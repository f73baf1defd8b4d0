package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	ai "github.com/spetersoncode/tandem"
)

// Handler executes a tool call and returns its result.
type Handler func(ctx context.Context, call ai.ToolCall) ai.ToolResult

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// NewServer creates an MCP server that exposes tools, dispatching every
// call to handle.
//
// Example:
//
//	s := mcp.NewServer(ai.NativeTools(), bridge.Tools().Execute,
//	    mcp.WithName("tandem"),
//	)
//	server.ServeStdio(s)
func NewServer(tools []ai.Tool, handle Handler, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{
		name:    "tandem-mcp-server",
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(
		cfg.name,
		cfg.version,
		server.WithToolCapabilities(true),
	)

	for _, t := range tools {
		s.AddTool(exportTool(t), toolHandler(t.Name, handle))
	}

	return s
}

func toolHandler(toolName string, handle Handler) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var seq atomic.Int64
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsJSON := "{}"
		if req.Params.Arguments != nil {
			data, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to marshal arguments: %v", err)), nil
			}
			argsJSON = string(data)
		}

		// MCP has no call IDs; synthesize one per tool for prompts and logs.
		call := ai.ToolCall{
			ID:        fmt.Sprintf("mcp-%s-%d", toolName, seq.Add(1)),
			Name:      toolName,
			Arguments: argsJSON,
		}

		return exportResult(handle(ctx, call)), nil
	}
}

// ServeStdio serves tools over stdin/stdout until the input closes.
func ServeStdio(tools []ai.Tool, handle Handler, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(tools, handle, opts...))
}
