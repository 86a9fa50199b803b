// Package mcp publishes a Bridge's tools over the Model Context Protocol using
// the official go-sdk server.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skosovsky/autotool"
)

// Option configures NewServer.
type Option func(*serverOptions)

type serverOptions struct {
	logger       *slog.Logger
	instructions string
}

// WithLogger sets the logger for failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithInstructions sets the instructions sent to clients on initialization.
func WithInstructions(s string) Option {
	return func(o *serverOptions) { o.instructions = s }
}

// NewServer returns an MCP server exposing every tool of b. Tool calls go
// through Bridge.Invoke, so middlewares and hooks apply.
func NewServer(b *autotool.Bridge, impl *mcpsdk.Implementation, opts ...Option) *mcpsdk.Server {
	o := serverOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	var so *mcpsdk.ServerOptions
	if o.instructions != "" {
		so = &mcpsdk.ServerOptions{Instructions: o.instructions}
	}
	s := mcpsdk.NewServer(impl, so)
	for _, td := range b.Tools() {
		s.AddTool(tool(td), handler(b, td.ID, o.logger))
	}
	return s
}

// Serve runs a server for b on transport until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, b *autotool.Bridge, impl *mcpsdk.Implementation, t mcpsdk.Transport, opts ...Option) error {
	return NewServer(b, impl, opts...).Run(ctx, t)
}

func tool(td autotool.ToolDescriptor) *mcpsdk.Tool {
	var schema any = td.Parameters()
	if td.InputSchema != nil {
		schema = td.InputSchema
	}
	ann := &mcpsdk.ToolAnnotations{
		ReadOnlyHint:   td.Category == autotool.CategoryRead || td.Category == autotool.CategorySearch,
		IdempotentHint: td.Category == autotool.CategoryRead || td.Category == autotool.CategorySearch,
	}
	destructive := td.Flags.Has(autotool.FlagDestructive)
	ann.DestructiveHint = &destructive
	return &mcpsdk.Tool{
		Name:        td.ID,
		Description: td.Description,
		InputSchema: schema,
		Annotations: ann,
	}
}

func handler(b *autotool.Bridge, id string, logger *slog.Logger) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		res := b.Invoke(ctx, autotool.Call{Tool: id, Args: args})
		if res.Error != nil {
			logger.DebugContext(ctx, "mcp tool call failed", "tool", id, "kind", res.Error.Kind, "error", res.Error.Message)
			return errorResult(res.Error), nil
		}
		return textResult(res.Value), nil
	}
}

func textResult(v any) *mcpsdk.CallToolResult {
	text, ok := v.(string)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil {
			return errorResult(&autotool.Error{Kind: autotool.InvocationError, Message: "result encoding: " + err.Error()})
		}
		text = string(data)
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

func errorResult(e *autotool.Error) *mcpsdk.CallToolResult {
	data, err := json.Marshal(e)
	if err != nil {
		data = []byte(e.Error())
	}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}
}
