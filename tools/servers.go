package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"actions-bootstrapper/actionserver"
	"actions-bootstrapper/process"
	"actions-bootstrapper/supervisor"
)

// defaultExitedSince is how far back list_action_servers reports servers
// that have stopped.
const defaultExitedSince = 10 * time.Minute

type StartServerArgs struct {
	ActionPackageName string `json:"action_package_name" jsonschema:"name of the action package to serve"`
	Secrets           string `json:"secrets,omitempty" jsonschema:"a JSON object mapping secret names to values; each becomes an environment variable of the server"`
}

type ServerURLArgs struct {
	ActionServerURL string `json:"action_server_url" jsonschema:"base URL of the running action server, e.g. http://localhost:8080"`
}

type RunLogsArgs struct {
	ActionServerURL string `json:"action_server_url" jsonschema:"base URL of the running action server"`
	RunID           string `json:"run_id" jsonschema:"the ID of the run to fetch logs for"`
}

type ListServersArgs struct {
	ActionPackageName string `json:"action_package_name,omitempty" jsonschema:"only list servers of this action package"`
	ExitedSinceSecs   *int   `json:"exited_since_secs,omitempty" jsonschema:"only include stopped servers that exited within this many seconds (default 600); 0 lists running servers only"`
}

type ServerIDArgs struct {
	ServerID string `json:"server_id" jsonschema:"the ID of the server (from start_action_server or list_action_servers)"`
}

// RegisterServerTools registers the tools that start, inspect and stop
// action servers.
func RegisterServerTools(server *mcp.Server, d Deps) {
	addTool(server, d, &mcp.Tool{
		Name: "start_action_server",
		Description: `Start the action server for a bootstrapped action package and wait until it is ready (up to the start timeout).

Returns "Action Server started at <url>" on success. On failure the text includes the helper's stdout and stderr. A second text item carries the server handle as JSON; its id works with get_action_server_output and kill_action_server.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args StartServerArgs) (*mcp.CallToolResult, any, error) {
		dir, err := d.Workspace.Path(args.ActionPackageName)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}

		out := d.Supervisor.Start(ctx, args.ActionPackageName, dir, args.Secrets)
		res := textResult(out.Message)
		res.IsError = out.State != supervisor.StateReady
		if out.Server != nil {
			data, err := json.Marshal(out.Server)
			if err != nil {
				return nil, nil, fmt.Errorf("marshaling response: %w", err)
			}
			res.Content = append(res.Content, &mcp.TextContent{Text: string(data)})
		}
		return res, nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "stop_action_server",
		Description: "Ask the action server at the given URL to shut down.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ServerURLArgs) (*mcp.CallToolResult, any, error) {
		if args.ActionServerURL == "" {
			return required("action_server_url"), nil, nil
		}
		res := d.Supervisor.Stop(ctx, args.ActionServerURL)
		if res.Outcome != actionserver.ShutdownStopped {
			return errorResult(res.Message), nil, nil
		}
		return textResult(res.Message), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "get_action_run_logs",
		Description: "Return the plain text output of one action run from the action server.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RunLogsArgs) (*mcp.CallToolResult, any, error) {
		if args.ActionServerURL == "" || args.RunID == "" {
			return required("action_server_url", "run_id"), nil, nil
		}
		logs, err := d.Client.RunLogs(ctx, args.ActionServerURL, args.RunID)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(logs), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "get_action_run_logs_latest",
		Description: "Return the plain text output of the most recent action run on the action server.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ServerURLArgs) (*mcp.CallToolResult, any, error) {
		if args.ActionServerURL == "" {
			return required("action_server_url"), nil, nil
		}
		logs, err := d.Client.LatestRunLogs(ctx, args.ActionServerURL)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(logs), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name: "list_action_servers",
		Description: `List action servers started by this tool with their status, port and URL.

Servers persist across conversations; check here before starting a package again.`,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListServersArgs) (*mcp.CallToolResult, any, error) {
		filter := process.ListFilter{
			Package:     args.ActionPackageName,
			ExitedSince: defaultExitedSince,
		}
		if args.ExitedSinceSecs != nil {
			filter.ExitedSince = time.Duration(*args.ExitedSinceSecs) * time.Second
			filter.RunningOnly = *args.ExitedSinceSecs <= 0
		}
		views, err := d.Launcher.List(filter)
		if err != nil {
			return nil, nil, fmt.Errorf("listing servers: %w", err)
		}
		if views == nil {
			views = []process.View{}
		}
		return jsonResult(views)
	})

	addTool(server, d, &mcp.Tool{
		Name:        "get_action_server_output",
		Description: "Show the captured stdout and stderr of a server's helper and the tail of its action_server.log.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ServerIDArgs) (*mcp.CallToolResult, any, error) {
		if args.ServerID == "" {
			return required("server_id"), nil, nil
		}
		view, err := d.Launcher.Get(args.ServerID)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Server %s (%s) at %s\n\n", view.ID, view.Status, view.URL)

		out, err := d.Launcher.Output(view.ID)
		switch {
		case errors.Is(err, process.ErrNoOutput):
			b.WriteString("Stdout/Stderr: not captured in this session\n\n")
		case err != nil:
			return errorResult(err.Error()), nil, nil
		default:
			fmt.Fprintf(&b, "Stdout:\n%s\n\nStderr:\n%s\n\n", out.Stdout, out.Stderr)
		}

		logs, err := d.Launcher.LogTail(view.ID)
		if err != nil {
			fmt.Fprintf(&b, "Log: %v\n", err)
		} else {
			fmt.Fprintf(&b, "Log (%s):\n%s", view.LogPath, logs)
		}
		return textResult(b.String()), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "kill_action_server",
		Description: "Kill a server's helper process group (SIGTERM, then SIGKILL after the kill timeout). Prefer stop_action_server for a graceful shutdown.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ServerIDArgs) (*mcp.CallToolResult, any, error) {
		if args.ServerID == "" {
			return required("server_id"), nil, nil
		}
		view, err := d.Launcher.Kill(args.ServerID)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return jsonResult(view)
	})
}
