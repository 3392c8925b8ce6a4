// Package helper is the process the supervisor spawns for each automation
// server. It turns the secrets argument into environment variables, runs
// "<action-server> start" in the package directory and mirrors the server's
// output into the package log, where the supervisor looks for readiness.
package helper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/tidwall/jsonc"

	"actions-bootstrapper/supervisor"
)

// Options configures a helper run.
type Options struct {
	// Binary is the automation server executable.
	Binary string
	// StartArgs are appended after "start --port N --address localhost".
	StartArgs []string
	// LogFile is the log name inside the package directory.
	LogFile string
	// Stdout and Stderr receive a copy of the server output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Run starts the automation server for dir on port and waits for it to exit.
// Any failure is appended to the log as an error-marker line before it is
// returned.
func Run(ctx context.Context, opts Options, dir, port, secrets string) error {
	stdout, stderr := orDiscard(opts.Stdout), orDiscard(opts.Stderr)

	logPath := filepath.Join(dir, opts.LogFile)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", supervisor.ErrorMarker, err)
		return fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()

	fail := func(err error) error {
		line := fmt.Sprintf("%s: %v\n", supervisor.ErrorMarker, err)
		io.WriteString(logFile, line)
		io.WriteString(stderr, line)
		return err
	}

	if _, err := strconv.Atoi(port); err != nil {
		return fail(fmt.Errorf("invalid port %q", port))
	}
	env, err := SecretsEnv(secrets)
	if err != nil {
		return fail(err)
	}

	args := append([]string{"start", "--port", port, "--address", "localhost"}, opts.StartArgs...)
	cmd := exec.Command(opts.Binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = io.MultiWriter(logFile, stdout)
	cmd.Stderr = io.MultiWriter(logFile, stderr)

	if err := cmd.Start(); err != nil {
		return fail(err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := supervise(ctx, cmd.Process, sigs, done); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return fail(fmt.Errorf("exit status %d", exitErr.ExitCode()))
		}
		return fail(err)
	}
	return nil
}

// child is the part of *os.Process that supervise needs.
type child interface {
	Signal(os.Signal) error
	Kill() error
}

// supervise forwards sigs to p and kills it once when ctx ends, returning the
// wait result from done.
func supervise(ctx context.Context, p child, sigs <-chan os.Signal, done <-chan error) error {
	ctxDone := ctx.Done()
	for {
		select {
		case sig := <-sigs:
			_ = p.Signal(sig)
		case <-ctxDone:
			_ = p.Kill()
			ctxDone = nil
		case err := <-done:
			return err
		}
	}
}

// SecretsEnv converts a JSON object of secret name to value into NAME=value
// pairs, sorted by name. Comments and trailing commas are tolerated. String
// values are used verbatim; other values are JSON-encoded.
func SecretsEnv(secrets string) ([]string, error) {
	if strings.TrimSpace(secrets) == "" {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON([]byte(secrets)), &m); err != nil {
		return nil, fmt.Errorf("secrets must be a JSON object: %w", err)
	}

	env := make([]string, 0, len(m))
	for name, raw := range m {
		if name == "" || strings.ContainsAny(name, "=\x00") {
			return nil, fmt.Errorf("invalid secret name %q", name)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			var buf bytes.Buffer
			json.Compact(&buf, raw)
			s = buf.String()
		}
		env = append(env, name+"="+s)
	}
	sort.Strings(env)
	return env, nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
