package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport is the kind of connection used to reach a provider.
type Transport string

const (
	// TransportStdio spawns a subprocess and speaks MCP over its stdio.
	TransportStdio Transport = "stdio"
	// TransportSSE opens a persistent server-sent-events connection.
	TransportSSE Transport = "sse"
	// TransportHTTP uses the streamable HTTP transport.
	TransportHTTP Transport = "http"
)

// Valid reports whether t is a known transport.
func (t Transport) Valid() bool {
	switch t {
	case TransportStdio, TransportSSE, TransportHTTP:
		return true
	}
	return false
}

// Networked reports whether t reaches the provider over a URL.
func (t Transport) Networked() bool {
	return t == TransportSSE || t == TransportHTTP
}

// ServerConfig describes one external tool provider.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport Transport         `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Disabled  bool              `yaml:"disabled,omitempty"`
	// Timeout bounds connecting and each tool call. Zero uses the manager default.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Validate reports the first problem with c.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp server: name is required")
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp server %q: command is required for stdio", c.Name)
		}
	case TransportSSE, TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcp server %q: url is required for %s", c.Name, c.Transport)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown transport %q", c.Name, c.Transport)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("mcp server %q: timeout must not be negative", c.Name)
	}
	return nil
}

// Client is the subset of an MCP client the manager uses.
// *client.Client from mcp-go satisfies it.
type Client interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

var _ Client = (*client.Client)(nil)

// Dialer creates an unstarted client for cfg.
type Dialer func(ctx context.Context, cfg ServerConfig) (Client, error)

// DefaultDialer creates mcp-go clients for the stdio, SSE and streamable
// HTTP transports.
func DefaultDialer(_ context.Context, cfg ServerConfig) (Client, error) {
	switch cfg.Transport {
	case TransportStdio:
		c, err := client.NewStdioMCPClient(cfg.Command, envList(cfg.Env), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
		}
		return c, nil
	case TransportSSE:
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		c, err := client.NewSSEMCPClient(cfg.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE MCP client: %w", err)
		}
		return c, nil
	case TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err := client.NewStreamableHttpClient(cfg.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}
