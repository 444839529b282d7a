// Package mcptools exposes the workspace actions as MCP tools, so an agent
// can drive the same compile/eval loop the editor does.
package mcptools

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sakif/workbench/internal/model"
	"github.com/sakif/workbench/internal/service"
)

type compileInput struct {
	Filename string `json:"filename" jsonschema:"source file, relative to the workspace"`
	Output   string `json:"output" jsonschema:"compiled output file, relative to the workspace"`
}

type fileInput struct {
	Filename string `json:"filename" jsonschema:"file, relative to the workspace"`
}

type writeFileInput struct {
	Filename string `json:"filename" jsonschema:"file, relative to the workspace"`
	Content  string `json:"content" jsonschema:"full file contents; any existing file is overwritten"`
}

// NewServer builds an MCP server whose tools call svc.
func NewServer(svc *service.ActionService, version string) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "workbench", Version: version},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compile",
		Description: "Compile a source file in the workspace. A non-zero code means the compiler reported errors on stderr.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in compileInput) (*mcp.CallToolResult, model.ActionResult, error) {
		return toolResult(svc.Compile(ctx, in.Filename, in.Output))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "eval",
		Description: "Run a file in the workspace with the runtime and return its output.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in fileInput) (*mcp.CallToolResult, model.ActionResult, error) {
		return toolResult(svc.Evaluate(ctx, in.Filename))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "write_file",
		Description: "Write a file in the workspace. Parent directories are not created.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in writeFileInput) (*mcp.CallToolResult, model.ActionResult, error) {
		return toolResult(svc.WriteFile(ctx, in.Filename, &in.Content))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_file",
		Description: "Read a file from the workspace. The contents are returned as stdout.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in fileInput) (*mcp.CallToolResult, model.ActionResult, error) {
		return toolResult(svc.ReadFile(ctx, in.Filename))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset",
		Description: "Delete everything in the workspace.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, model.ActionResult, error) {
		return toolResult(svc.Reset(ctx))
	})

	return server
}

// Handler serves server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

// toolResult turns an action outcome into a tool result. The ActionResult is
// both the structured output and, as JSON, the text content. A rejected
// request becomes a tool error via the returned error.
func toolResult(outcome model.Outcome, err error) (*mcp.CallToolResult, model.ActionResult, error) {
	if err != nil {
		return nil, model.ActionResult{}, err
	}

	result := model.Result(outcome)
	text, err := json.Marshal(result)
	if err != nil {
		return nil, model.ActionResult{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: !result.OK(),
	}, result, nil
}
