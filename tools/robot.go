package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"actions-bootstrapper/robot"
)

type RunShellCommandArgs struct {
	Cmd []string `json:"cmd" jsonschema:"the command and its arguments, e.g. [\"rcc\", \"version\"]"`
	Cwd string   `json:"cwd,omitempty" jsonschema:"directory to run the command in"`
}

type TemplateDirArgs struct {
	Template  string `json:"template" jsonschema:"template to use, e.g. 01-python or python-minimal"`
	Directory string `json:"directory" jsonschema:"where to create the robot"`
}

type PullRobotArgs struct {
	OwnerRepo string `json:"owner_repo" jsonschema:"GitHub owner and repository, e.g. user/repo"`
	Directory string `json:"directory" jsonschema:"where to put the robot"`
}

type PullTemplateArgs struct {
	RepoURL   string `json:"repo_url" jsonschema:"URL of the repository holding the template"`
	Directory string `json:"directory" jsonschema:"where to put the template"`
}

type RunRobotArgs struct {
	RobotPath string `json:"robot_path" jsonschema:"path to the robot directory containing robot.yaml"`
	TaskName  string `json:"task_name,omitempty" jsonschema:"task to run; the robot's default task when empty"`
}

// RobotDirArgs selects the robot directory for robot-scoped tools.
type RobotDirArgs struct {
	RobotDir string `json:"robot_dir,omitempty" jsonschema:"robot directory to run in; defaults to the server's working directory"`
}

type InitializeRobotArgs struct {
	RobotDir  string `json:"robot_dir,omitempty" jsonschema:"robot directory to run in; defaults to the server's working directory"`
	RobotName string `json:"robot_name" jsonschema:"name for the new robot"`
	Template  string `json:"template" jsonschema:"template to use"`
}

type UnwrapRobotArgs struct {
	RobotDir string `json:"robot_dir,omitempty" jsonschema:"robot directory to run in; defaults to the server's working directory"`
	Artifact string `json:"artifact" jsonschema:"path to the wrapped robot artifact"`
}

type RunTaskArgs struct {
	RobotDir string `json:"robot_dir,omitempty" jsonschema:"robot directory to run in; defaults to the server's working directory"`
	TaskName string `json:"task_name" jsonschema:"name of the task to run"`
}

type ScriptInRobotArgs struct {
	RobotDir string `json:"robot_dir,omitempty" jsonschema:"robot directory to run in; defaults to the server's working directory"`
	Command  string `json:"command" jsonschema:"command to run inside the robot environment"`
}

type NoArgs struct{}

// RegisterRobotTools registers the robot-automation CLI tools.
func RegisterRobotTools(server *mcp.Server, d Deps) {
	r := d.Robot

	addTool(server, d, &mcp.Tool{
		Name:        "run_shell_command",
		Description: "Run a command (usually rcc) and return its combined stdout and stderr. A non-zero exit status is reported in the output rather than as a failure.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RunShellCommandArgs) (*mcp.CallToolResult, any, error) {
		if len(args.Cmd) == 0 {
			return required("cmd"), nil, nil
		}
		res, err := robot.Exec(ctx, args.Cwd, args.Cmd)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		if !res.OK() {
			d.Logger.Warn("command failed", "argv0", args.Cmd[0], "exit_code", res.ExitCode)
		}
		return textResult(res.Output), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "create_robot",
		Description: "Create a new robot from a template (rcc robot initialize).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args TemplateDirArgs) (*mcp.CallToolResult, any, error) {
		if args.Template == "" || args.Directory == "" {
			return required("template", "directory"), nil, nil
		}
		return outcomeResult(r.CreateRobot(ctx, args.Template, args.Directory))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "pull_robot",
		Description: "Pull a robot from a GitHub repository into a directory (rcc pull).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PullRobotArgs) (*mcp.CallToolResult, any, error) {
		if args.OwnerRepo == "" || args.Directory == "" {
			return required("owner_repo", "directory"), nil, nil
		}
		out, err := r.PullRobot(ctx, args.OwnerRepo, args.Directory)
		if err != nil {
			return errorResult("Error pulling robot: " + err.Error()), nil, nil
		}
		return outcomeResult(out, nil)
	})

	addTool(server, d, &mcp.Tool{
		Name:        "list_templates",
		Description: "List the robot templates available to create_robot.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
		return cliResult(r.ListTemplates(ctx))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "pull_template",
		Description: "Pull a template from a repository URL into a directory.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PullTemplateArgs) (*mcp.CallToolResult, any, error) {
		if args.RepoURL == "" || args.Directory == "" {
			return required("repo_url", "directory"), nil, nil
		}
		return cliResult(r.PullTemplate(ctx, args.RepoURL, args.Directory))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "create_from_template",
		Description: "Create a new robot from a named template (rcc create).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args TemplateDirArgs) (*mcp.CallToolResult, any, error) {
		if args.Template == "" || args.Directory == "" {
			return required("template", "directory"), nil, nil
		}
		return cliResult(r.CreateFromTemplate(ctx, args.Template, args.Directory))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "run_robot",
		Description: "Run the robot at robot_path, optionally a single task.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RunRobotArgs) (*mcp.CallToolResult, any, error) {
		if args.RobotPath == "" {
			return required("robot_path"), nil, nil
		}
		return cliResult(r.RunRobot(ctx, args.RobotPath, args.TaskName))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "task_testrun",
		Description: "Do a clean test run of the robot in a fresh environment.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RobotDirArgs) (*mcp.CallToolResult, any, error) {
		return cliResult(r.TaskTestrun(ctx, args.RobotDir))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "initialize_robot",
		Description: "Initialize a new robot with a name and template (rcc robot init).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args InitializeRobotArgs) (*mcp.CallToolResult, any, error) {
		if args.RobotName == "" || args.Template == "" {
			return required("robot_name", "template"), nil, nil
		}
		return cliResult(r.InitializeRobot(ctx, args.RobotDir, args.RobotName, args.Template))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "robot_dependencies",
		Description: "Check the dependencies of the robot.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RobotDirArgs) (*mcp.CallToolResult, any, error) {
		return cliResult(r.Dependencies(ctx, args.RobotDir))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "robot_diagnostics",
		Description: "Run diagnostics on the robot.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RobotDirArgs) (*mcp.CallToolResult, any, error) {
		return cliResult(r.Diagnostics(ctx, args.RobotDir))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "wrap_robot",
		Description: "Wrap the robot into a distributable artifact.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RobotDirArgs) (*mcp.CallToolResult, any, error) {
		return cliResult(r.Wrap(ctx, args.RobotDir))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "unwrap_robot",
		Description: "Unwrap a robot artifact created by wrap_robot.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UnwrapRobotArgs) (*mcp.CallToolResult, any, error) {
		if args.Artifact == "" {
			return required("artifact"), nil, nil
		}
		return cliResult(r.Unwrap(ctx, args.RobotDir, args.Artifact))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "run_task",
		Description: "Run one task of the robot by name.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RunTaskArgs) (*mcp.CallToolResult, any, error) {
		if args.TaskName == "" {
			return required("task_name"), nil, nil
		}
		return cliResult(r.RunTask(ctx, args.RobotDir, args.TaskName))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List the tasks the robot can run.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RobotDirArgs) (*mcp.CallToolResult, any, error) {
		return cliResult(r.ListTasks(ctx, args.RobotDir))
	})

	addTool(server, d, &mcp.Tool{
		Name:        "script_in_robot",
		Description: "Run a command inside the robot's environment.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ScriptInRobotArgs) (*mcp.CallToolResult, any, error) {
		if args.Command == "" {
			return required("command"), nil, nil
		}
		return cliResult(r.Script(ctx, args.RobotDir, args.Command))
	})

	for _, topic := range []string{robot.DocsList, robot.DocsRecipes, robot.DocsChangelog} {
		addTool(server, d, &mcp.Tool{
			Name:        "docs_" + topic,
			Description: "Show the rcc documentation " + topic + ".",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
			return cliResult(r.Docs(ctx, topic))
		})
	}

	addTool(server, d, &mcp.Tool{
		Name:        "help",
		Description: "Show the rcc help text.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
		return cliResult(r.Help(ctx))
	})
}

// cliResult returns the CLI output, flagged as an error on a non-zero exit.
func cliResult(res robot.Result, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !res.OK() {
		return errorResult(res.Output), nil, nil
	}
	return textResult(res.Output), nil, nil
}

func outcomeResult(out robot.Outcome, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	if !out.Success {
		return errorResult(out.Message), nil, nil
	}
	return textResult(out.Message), nil, nil
}
