//go:build !windows

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actions-bootstrapper/actionserver"
	"actions-bootstrapper/config"
	"actions-bootstrapper/logging"
	"actions-bootstrapper/metrics"
	"actions-bootstrapper/process"
	"actions-bootstrapper/robot"
	"actions-bootstrapper/store"
	"actions-bootstrapper/supervisor"
	"actions-bootstrapper/workspace"
)

// readyHelper announces the server URL in the package log and stays up.
const readyHelper = `echo "helper for $1"; echo "Action Server running at http://localhost:$2" >> "$1/action_server.log"; exec sleep 30`

const scaffold = `#!/bin/sh
mkdir -p "$3/devdata"
echo "name: x" > "$3/package.yaml"
echo "old" > "$3/actions.py"
`

type harness struct {
	session *mcp.ClientSession
	root    string
	metrics *metrics.Metrics
}

func writeExec(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// newHarness wires every tool to real components backed by fake binaries and
// connects an MCP client over in-memory transports.
func newHarness(t *testing.T, rccBody string) *harness {
	t.Helper()
	ctx := context.Background()
	logger := logging.Discard()
	m := metrics.New()

	st, err := store.OpenDir(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	mgr := process.NewManager(st, logger, time.Second)
	t.Cleanup(mgr.Shutdown)

	root := filepath.Join(t.TempDir(), "actions_bootstrapper")
	ws := workspace.New(config.WorkspaceConfig{
		Root:      root,
		Editor:    writeExec(t, "editor", "#!/bin/sh\nexit 0\n"),
		Formatter: []string{"cat"},
	}, writeExec(t, "action-server", scaffold), logger)

	port, err := supervisor.FindAvailablePort(39080)
	require.NoError(t, err)
	client := actionserver.NewClient(&http.Client{Timeout: 2 * time.Second}, logger)
	sup := supervisor.New(supervisor.Options{
		Helper:       []string{"/bin/sh", "-c", readyHelper, "helper"},
		StartPort:    port,
		LogFile:      "action_server.log",
		Grace:        20 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		Timeout:      5 * time.Second,
	}, mgr, client, m, logger)

	server := mcp.NewServer(&mcp.Implementation{Name: "actions-bootstrapper", Version: "test"}, nil)
	Register(server, Deps{
		Robot:      robot.NewRunner(writeExec(t, "rcc", "#!/bin/sh\necho \"rcc $*\"\n"+rccBody+"\n"), m, logger),
		Workspace:  ws,
		Supervisor: sup,
		Launcher:   mgr,
		Client:     client,
		Metrics:    m,
		Logger:     logger,
	})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	c := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := c.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return &harness{session: cs, root: root, metrics: m}
}

// call invokes a tool and returns its first text item and the error flag.
func (h *harness) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	res := h.callResult(t, name, args)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "first content item is text")
	return text.Text, res.IsError
}

func (h *harness) callResult(t *testing.T, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := h.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func TestRegister_ListsEveryTool(t *testing.T) {
	h := newHarness(t, "")

	res, err := h.session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}

	want := []string{
		"run_shell_command", "create_robot", "pull_robot", "list_templates", "pull_template",
		"create_from_template", "run_robot", "task_testrun", "initialize_robot", "robot_dependencies",
		"robot_diagnostics", "wrap_robot", "unwrap_robot", "run_task", "list_tasks", "script_in_robot",
		"docs_list", "docs_recipes", "docs_changelog", "help",
		"bootstrap_action_package", "update_action_package_dependencies",
		"update_action_package_action_dev_data", "update_action_code", "open_action_code", "get_file_contents",
		"start_action_server", "stop_action_server", "get_action_run_logs", "get_action_run_logs_latest",
		"list_action_servers", "get_action_server_output", "kill_action_server",
	}
	assert.ElementsMatch(t, want, names)
}

func TestRobotTools(t *testing.T) {
	h := newHarness(t, "echo OK")

	text, isErr := h.call(t, "create_robot", map[string]any{"template": "01-python", "directory": "bot"})
	assert.False(t, isErr)
	assert.Equal(t, "Robot created from template 01-python in bot", text)

	text, isErr = h.call(t, "docs_changelog", nil)
	assert.False(t, isErr)
	assert.Equal(t, "rcc docs changelog\nOK\n", text)

	dir := t.TempDir()
	text, _ = h.call(t, "list_tasks", map[string]any{"robot_dir": dir})
	assert.Equal(t, "rcc task list\nOK\n", text)

	text, isErr = h.call(t, "create_robot", map[string]any{"template": "01-python", "directory": ""})
	assert.True(t, isErr)
	assert.Equal(t, "template and directory are required", text)

	// Absent arguments fail schema validation before the handler runs.
	_, err := h.session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "create_robot",
		Arguments: map[string]any{"template": "01-python"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestRobotTools_FailuresAreErrors(t *testing.T) {
	h := newHarness(t, "echo 'no such template' >&2; exit 1")

	text, isErr := h.call(t, "pull_robot", map[string]any{"owner_repo": "user/repo", "directory": "d"})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Failed to pull robot from user/repo. Output: "), text)

	text, isErr = h.call(t, "robot_diagnostics", nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "no such template")

	expected := `
# HELP bootstrapper_tool_calls_total MCP tool calls by tool and result
# TYPE bootstrapper_tool_calls_total counter
bootstrapper_tool_calls_total{result="error",tool="pull_robot"} 1
bootstrapper_tool_calls_total{result="error",tool="robot_diagnostics"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "bootstrapper_tool_calls_total"))
}

func TestRunShellCommand(t *testing.T) {
	h := newHarness(t, "")

	text, isErr := h.call(t, "run_shell_command", map[string]any{
		"cmd": []string{"/bin/sh", "-c", "echo out; echo err >&2; exit 3"},
	})
	assert.False(t, isErr, "non-zero exit is reported in the output only")
	assert.Equal(t, "out\nerr\n", text)

	text, isErr = h.call(t, "run_shell_command", map[string]any{"cmd": []string{"no-such-binary-xyz"}})
	assert.True(t, isErr)
	assert.Contains(t, text, "executable not found")
}

func TestPackageTools(t *testing.T) {
	h := newHarness(t, "")
	pkgDir := filepath.Join(h.root, "pkgA")

	text, isErr := h.call(t, "bootstrap_action_package", map[string]any{"action_package_name": "pkgA"})
	require.False(t, isErr, text)
	assert.Equal(t, "Action successfully bootstrapped! Code available at "+pkgDir, text)

	text, isErr = h.call(t, "update_action_package_dependencies", map[string]any{
		"action_package_name":              "pkgA",
		"action_package_dependencies_code": "dependencies:\n  pypi:\n    - requests\n",
	})
	assert.False(t, isErr)
	assert.Equal(t, "Successfully updated the package dependencies at: "+filepath.Join(pkgDir, "package.yaml"), text)

	_, isErr = h.call(t, "update_action_package_dependencies", map[string]any{
		"action_package_name":              "pkgA",
		"action_package_dependencies_code": "dependencies: [",
	})
	assert.True(t, isErr)

	text, isErr = h.call(t, "update_action_package_action_dev_data", map[string]any{
		"action_package_name":        "pkgA",
		"action_package_action_name": "greet",
		"action_package_dev_data":    `{"name": "world"}`,
	})
	assert.False(t, isErr)
	assert.Equal(t, "dev data for greet in the action package pkgA successfully created!", text)

	code := "from sema4ai.actions import action\n"
	text, isErr = h.call(t, "update_action_code", map[string]any{"action_package_name": "pkgA", "action_code": code})
	assert.False(t, isErr)
	assert.Equal(t, "Successfully updated the actions at "+filepath.Join(pkgDir, "actions.py"), text)

	text, isErr = h.call(t, "get_file_contents", map[string]any{"action_package_name": "pkgA"})
	assert.False(t, isErr)
	assert.Equal(t, code, text)

	text, isErr = h.call(t, "get_file_contents", map[string]any{"action_package_name": "pkgA", "file_name": "nope.py"})
	assert.True(t, isErr)
	assert.Equal(t, "File not found: "+filepath.Join(pkgDir, "nope.py"), text)

	text, isErr = h.call(t, "open_action_code", map[string]any{"action_package_name": "pkgA"})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "pkgA code opened with "), text)

	text, isErr = h.call(t, "open_action_code", map[string]any{"action_package_name": "ghost"})
	assert.True(t, isErr)
	assert.Equal(t, "Error: Action package 'ghost' does not exist at path "+filepath.Join(h.root, "ghost")+".", text)
}

func TestStartActionServer_MissingPackage(t *testing.T) {
	h := newHarness(t, "")

	text, isErr := h.call(t, "start_action_server", map[string]any{"action_package_name": "ghost", "secrets": "{}"})
	assert.True(t, isErr)
	assert.Equal(t, "Action package '"+filepath.Join(h.root, "ghost")+"' does not exist.", text)

	_, isErr = h.call(t, "start_action_server", map[string]any{"action_package_name": "../etc"})
	assert.True(t, isErr)
}

func TestServerLifecycle(t *testing.T) {
	h := newHarness(t, "")
	dir := filepath.Join(h.root, "pkgA")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	res := h.callResult(t, "start_action_server", map[string]any{"action_package_name": "pkgA", "secrets": `{"K": "v"}`})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 2)
	msg := res.Content[0].(*mcp.TextContent).Text
	assert.True(t, strings.HasPrefix(msg, "Action Server started at http://localhost:"), msg)

	var handle process.View
	require.NoError(t, json.Unmarshal([]byte(res.Content[1].(*mcp.TextContent).Text), &handle))
	assert.Equal(t, "pkgA", handle.Package)
	assert.Equal(t, process.StatusRunning, handle.Status)
	assert.Equal(t, "Action Server started at "+handle.URL, msg)

	text, _ := h.call(t, "list_action_servers", map[string]any{"action_package_name": "pkgA"})
	var views []process.View
	require.NoError(t, json.Unmarshal([]byte(text), &views))
	require.Len(t, views, 1)
	assert.Equal(t, handle.ID, views[0].ID)

	text, isErr := h.call(t, "get_action_server_output", map[string]any{"server_id": handle.ID})
	assert.False(t, isErr)
	assert.Contains(t, text, "helper for "+dir)
	assert.Contains(t, text, "Action Server running at "+handle.URL)

	text, isErr = h.call(t, "kill_action_server", map[string]any{"server_id": handle.ID})
	require.False(t, isErr, text)
	var killed process.View
	require.NoError(t, json.Unmarshal([]byte(text), &killed))
	assert.NotEqual(t, process.StatusRunning, killed.Status)

	text, _ = h.call(t, "list_action_servers", map[string]any{"exited_since_secs": 0})
	assert.Equal(t, "[]", text)
	text, _ = h.call(t, "list_action_servers", nil)
	require.NoError(t, json.Unmarshal([]byte(text), &views))
	assert.Len(t, views, 1)

	_, isErr = h.call(t, "kill_action_server", map[string]any{"server_id": "unknown"})
	assert.True(t, isErr)
}

func TestListActionServers_Empty(t *testing.T) {
	h := newHarness(t, "")
	text, isErr := h.call(t, "list_action_servers", nil)
	assert.False(t, isErr)
	assert.Equal(t, "[]", text)
}

func TestActionServerHTTPTools(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 1}, {"id": "run-2"}]`)
	})
	mux.HandleFunc("GET /api/runs/{id}/artifacts/text-content", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			actionserver.OutputArtifact: "output of " + r.PathValue("id"),
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHarness(t, "")

	text, isErr := h.call(t, "stop_action_server", map[string]any{"action_server_url": srv.URL})
	assert.False(t, isErr)
	assert.Equal(t, "Successfully shutdown the action server", text)

	text, isErr = h.call(t, "get_action_run_logs", map[string]any{"action_server_url": srv.URL, "run_id": "1"})
	assert.False(t, isErr)
	assert.Equal(t, "output of 1", text)

	text, isErr = h.call(t, "get_action_run_logs_latest", map[string]any{"action_server_url": srv.URL})
	assert.False(t, isErr)
	assert.Equal(t, "output of run-2", text)
}

func TestStopActionServer_Failures(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer rejecting.Close()

	h := newHarness(t, "")

	text, isErr := h.call(t, "stop_action_server", map[string]any{"action_server_url": rejecting.URL})
	assert.True(t, isErr)
	assert.Equal(t, "Failed to stop the action server", text)

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()

	text, isErr = h.call(t, "stop_action_server", map[string]any{"action_server_url": url})
	assert.True(t, isErr)
	assert.Equal(t, "Could not connect to the server", text)
}
