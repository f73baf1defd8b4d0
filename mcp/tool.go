// Package mcp manages connections to external tool providers that speak the
// Model Context Protocol.
//
// A [Manager] connects to every configured server (stdio subprocesses, SSE
// or streamable HTTP endpoints), merges their tool catalogs into a single
// namespace and routes tool calls to the owning server:
//
//	m := mcp.NewManager(session)
//	m.Initialize(ctx, cfg.MCP.Servers)
//	defer m.CloseAll()
//
//	for _, t := range m.AllTools(ctx) {
//	    fmt.Println(t.Name)
//	}
//	result, err := m.CallTool(ctx, call)
//
// [NewServer] goes the other way and exposes tools as an in-process or
// stdio MCP server.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	ai "github.com/spetersoncode/tandem"
)

// exportTool advertises t to MCP clients with its parameter schema as is.
func exportTool(t ai.Tool) mcp.Tool {
	return mcp.NewToolWithRawSchema(t.Name, t.Description, t.Parameters)
}

// importTool converts a remote tool definition. Servers built with typed
// schemas leave RawInputSchema empty, so InputSchema is marshaled instead.
func importTool(t mcp.Tool) ai.Tool {
	params := t.RawInputSchema
	if len(params) == 0 {
		if data, err := json.Marshal(t.InputSchema); err == nil {
			params = data
		}
	}
	return ai.Tool{Name: t.Name, Description: t.Description, Parameters: params}
}

// callRequest builds the request for a model tool call. Arguments that are
// not JSON are forwarded as a plain string and left for the server to reject.
func callRequest(call ai.ToolCall) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = call.Name
	if call.Arguments == "" {
		return req
	}
	var args any
	if json.Unmarshal([]byte(call.Arguments), &args) != nil {
		args = call.Arguments
	}
	req.Params.Arguments = args
	return req
}

// importResult flattens a server result into one text block, one line per
// content item. Non-text items and structured content are included as JSON.
func importResult(callID string, res *mcp.CallToolResult) ai.ToolResult {
	out := ai.ToolResult{ToolCallID: callID}
	if res == nil {
		out.Content = "empty response from tool provider"
		out.IsError = true
		return out
	}

	var b strings.Builder
	line := func(s string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			line(v.Text)
		case *mcp.TextContent:
			line(v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				line(string(data))
			}
		}
	}
	if res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			line(string(data))
		}
	}
	out.Content = b.String()
	out.IsError = res.IsError
	return out
}

func exportResult(r ai.ToolResult) *mcp.CallToolResult {
	if r.IsError {
		return mcp.NewToolResultError(r.Content)
	}
	return mcp.NewToolResultText(r.Content)
}
