package robot

import (
	"context"
	"fmt"
	"path/filepath"
)

// Markers printed by the CLI on successful scaffolding and pulls.
var (
	createMarkers = []string{"OK"}
	pullMarkers   = []string{"OK.", "Flattening path", "extracted files"}
)

// Doc topics accepted by Docs.
const (
	DocsList      = "list"
	DocsRecipes   = "recipes"
	DocsChangelog = "changelog"
)

// Outcome is a Result with a verdict and the message shown to the caller.
type Outcome struct {
	Result
	Success bool
	Message string
}

// CreateRobot scaffolds a robot from template into directory.
func (r *Runner) CreateRobot(ctx context.Context, template, directory string) (Outcome, error) {
	res, err := r.Run(ctx, "", "robot", "initialize", "--template", template, "--directory", directory)
	if err != nil {
		return Outcome{Result: res}, err
	}
	out := Outcome{Result: res, Success: res.OK() && res.ContainsAny(createMarkers...)}
	if out.Success {
		out.Message = fmt.Sprintf("Robot created from template %s in %s", template, directory)
	} else {
		out.Message = fmt.Sprintf("Failed to create robot from template %s here is the error: %s", template, res.Output)
	}
	return out, nil
}

// PullRobot pulls github.com/<ownerRepo> into directory.
func (r *Runner) PullRobot(ctx context.Context, ownerRepo, directory string) (Outcome, error) {
	res, err := r.Run(ctx, "", "pull", "github.com/"+ownerRepo, "--directory", directory)
	if err != nil {
		return Outcome{Result: res}, err
	}
	out := Outcome{Result: res, Success: res.OK() && res.ContainsAny(pullMarkers...)}
	if out.Success {
		out.Message = fmt.Sprintf("Robot successfully pulled from %s into %s. Details: %s", ownerRepo, directory, res.Output)
	} else {
		out.Message = fmt.Sprintf("Failed to pull robot from %s. Output: %s", ownerRepo, res.Output)
	}
	return out, nil
}

func (r *Runner) ListTemplates(ctx context.Context) (Result, error) {
	return r.Run(ctx, "", "robot", "initialize", "--list")
}

func (r *Runner) PullTemplate(ctx context.Context, repoURL, directory string) (Result, error) {
	return r.Run(ctx, "", "pull", repoURL, "-d", directory)
}

func (r *Runner) CreateFromTemplate(ctx context.Context, template, directory string) (Result, error) {
	return r.Run(ctx, "", "create", template, "-d", directory)
}

// RunRobot runs the robot described by <robotPath>/robot.yaml. An empty task
// runs the robot's default task.
func (r *Runner) RunRobot(ctx context.Context, robotPath, task string) (Result, error) {
	args := []string{"run", "-r", filepath.Join(robotPath, "robot.yaml")}
	if task != "" {
		args = append(args, "--task", task)
	}
	return r.Run(ctx, "", args...)
}

// The commands below act on the robot in dir; an empty dir is the current
// working directory.

func (r *Runner) TaskTestrun(ctx context.Context, dir string) (Result, error) {
	return r.Run(ctx, dir, "task", "testrun")
}

func (r *Runner) InitializeRobot(ctx context.Context, dir, name, template string) (Result, error) {
	return r.Run(ctx, dir, "robot", "init", "--name", name, "--template", template)
}

func (r *Runner) Dependencies(ctx context.Context, dir string) (Result, error) {
	return r.Run(ctx, dir, "robot", "dependencies")
}

func (r *Runner) Diagnostics(ctx context.Context, dir string) (Result, error) {
	return r.Run(ctx, dir, "robot", "diagnostics")
}

func (r *Runner) Wrap(ctx context.Context, dir string) (Result, error) {
	return r.Run(ctx, dir, "robot", "wrap")
}

func (r *Runner) Unwrap(ctx context.Context, dir, artifact string) (Result, error) {
	return r.Run(ctx, dir, "robot", "unwrap", "--artifact", artifact)
}

func (r *Runner) RunTask(ctx context.Context, dir, task string) (Result, error) {
	return r.Run(ctx, dir, "run", "--task", task)
}

func (r *Runner) ListTasks(ctx context.Context, dir string) (Result, error) {
	return r.Run(ctx, dir, "task", "list")
}

// Script runs command inside the robot's environment.
func (r *Runner) Script(ctx context.Context, dir, command string) (Result, error) {
	return r.Run(ctx, dir, "run", "--", command)
}

// Docs prints one of the CLI's documentation topics.
func (r *Runner) Docs(ctx context.Context, topic string) (Result, error) {
	switch topic {
	case DocsList, DocsRecipes, DocsChangelog:
	default:
		return Result{}, fmt.Errorf("unknown docs topic %q", topic)
	}
	return r.Run(ctx, "", "docs", topic)
}

func (r *Runner) Help(ctx context.Context) (Result, error) {
	return r.Run(ctx, "", "--help")
}
