// Package robot wraps the robot-automation CLI (rcc). Every operation builds
// an argv, runs the binary, and returns its output together with the exit
// code so callers can classify the outcome without guessing from text alone.
package robot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"

	"actions-bootstrapper/metrics"
)

// ErrBinaryNotFound is returned when the executable cannot be located.
var ErrBinaryNotFound = errors.New("executable not found")

// Result is the captured outcome of one command.
type Result struct {
	Argv     []string `json:"argv"`
	Output   string   `json:"output"`
	ExitCode int      `json:"exit_code"`
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// ContainsAny reports whether the output contains any of markers.
func (r Result) ContainsAny(markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(r.Output, m) {
			return true
		}
	}
	return false
}

// Exec runs argv in dir and returns stdout followed by stderr. A non-zero
// exit is not an error: it is reported through Result.ExitCode. Errors mean
// the command could not be run at all.
func Exec(ctx context.Context, dir string, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	res := Result{Argv: argv}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res.Output = stdout.String() + stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return res, fmt.Errorf("%w: %s", ErrBinaryNotFound, argv[0])
	default:
		return res, fmt.Errorf("running %s: %w", argv[0], err)
	}
	return res, nil
}

// Runner runs the robot-automation CLI.
type Runner struct {
	binary  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRunner returns a Runner invoking binary. m may be nil.
func NewRunner(binary string, m *metrics.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		binary:  binary,
		metrics: m,
		logger:  logger.With("component", "robot"),
	}
}

// Run executes the CLI with args in dir. An empty dir uses the current
// working directory.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	argv := append([]string{r.binary}, args...)
	res, err := Exec(ctx, dir, argv)

	sub := subcommand(args)
	switch {
	case err != nil:
		r.metrics.ObserveRobotRun(sub, "error")
		r.logger.Error("robot CLI could not run", "subcommand", sub, "error", err)
	case !res.OK():
		r.metrics.ObserveRobotRun(sub, "failed")
		r.logger.Warn("robot CLI failed",
			"subcommand", sub,
			"exit_code", res.ExitCode,
			"output", res.Output,
		)
	default:
		r.metrics.ObserveRobotRun(sub, "ok")
		r.logger.Debug("robot CLI ok", "subcommand", sub)
	}
	return res, err
}

// groups are the CLI commands whose first argument is itself a subcommand.
var groups = map[string]bool{"robot": true, "task": true, "docs": true}

// subcommand returns the command words of args, used as a metric label.
// Positional values such as repo URLs or template names are left out.
func subcommand(args []string) string {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "root"
	}
	if groups[args[0]] && len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		return args[0] + " " + args[1]
	}
	return args[0]
}
