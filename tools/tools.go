package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"actions-bootstrapper/actionserver"
	"actions-bootstrapper/metrics"
	"actions-bootstrapper/process"
	"actions-bootstrapper/robot"
	"actions-bootstrapper/supervisor"
	"actions-bootstrapper/workspace"
)

// Deps are the components the tools act on.
type Deps struct {
	Robot      *robot.Runner
	Workspace  *workspace.Workspace
	Supervisor *supervisor.Supervisor
	Launcher   process.Launcher
	Client     *actionserver.Client
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Register adds every tool to server.
func Register(server *mcp.Server, d Deps) {
	RegisterRobotTools(server, d)
	RegisterPackageTools(server, d)
	RegisterServerTools(server, d)
}

// addTool registers h and records a call metric for every invocation.
func addTool[In any](server *mcp.Server, d Deps, tool *mcp.Tool, h mcp.ToolHandlerFor[In, any]) {
	logger := d.Logger.With("tool", tool.Name)
	mcp.AddTool(server, tool, func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		res, out, err := h(ctx, req, args)
		failed := err != nil || (res != nil && res.IsError)
		d.Metrics.ObserveToolCall(tool.Name, failed, time.Since(start))
		if err != nil {
			logger.Error("tool call failed", "error", err)
		} else {
			logger.Debug("tool call", "is_error", failed, "duration", time.Since(start))
		}
		return res, out, err
	})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling response: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func required(names ...string) *mcp.CallToolResult {
	if len(names) == 1 {
		return errorResult(names[0] + " is required")
	}
	return errorResult(strings.Join(names, " and ") + " are required")
}
