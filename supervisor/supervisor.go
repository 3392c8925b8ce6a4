// Package supervisor starts automation servers and watches them come up.
//
// A start attempt claims a free port, spawns the helper through a
// process.Launcher, and tails the helper's log until the server announces its
// URL, the helper reports an error, or the timeout passes. Every outcome is
// rendered as the human-readable status text the start_action_server tool
// returns; the structured Outcome carries the same information for callers
// that prefer not to match substrings.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"actions-bootstrapper/actionserver"
	"actions-bootstrapper/metrics"
	"actions-bootstrapper/process"
)

// Options configures a Supervisor.
type Options struct {
	// Helper is the argv prefix of the helper; dir, port and secrets are
	// appended.
	Helper       []string
	StartPort    int
	LogFile      string
	Grace        time.Duration
	PollInterval time.Duration
	Timeout      time.Duration
	// StopGrace is how long StopServer lets a server that accepted the
	// shutdown request exit on its own before killing the helper.
	StopGrace time.Duration
}

// Outcome is the result of one start attempt.
type Outcome struct {
	State   State
	Message string
	// Server is the handle of the spawned helper. Nil when nothing was spawned.
	Server *process.View
	// Output is the helper output embedded in failure messages.
	Output process.Output
}

// Supervisor runs start and stop requests for automation servers.
type Supervisor struct {
	opts     Options
	launcher process.Launcher
	client   *actionserver.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Supervisor. m may be nil.
func New(opts Options, launcher process.Launcher, client *actionserver.Client, m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		opts:     opts,
		launcher: launcher,
		client:   client,
		metrics:  m,
		logger:   logger.With("component", "supervisor"),
	}
}

// Start launches the automation server for the package in dir and waits for
// it to become ready. secrets is passed to the helper untouched.
func (s *Supervisor) Start(ctx context.Context, pkg, dir, secrets string) Outcome {
	logger := s.logger.With("package", pkg)

	if _, err := os.Stat(dir); err != nil {
		logger.Info("package directory missing", "dir", dir)
		return Outcome{State: StateMissing, Message: MissingMessage(dir)}
	}

	port, err := FindAvailablePort(s.opts.StartPort)
	if err != nil {
		logger.Error("no free port", "start", s.opts.StartPort, "error", err)
		return Outcome{State: StateFailed, Message: fmt.Sprintf("Failed to start: %v", err)}
	}
	url := fmt.Sprintf("http://localhost:%d", port)
	logPath := filepath.Join(dir, s.opts.LogFile)
	logger.Info("starting action server", "port", port, "log", logPath)

	// Lines already in the log belong to earlier runs.
	offset := fileSize(logPath)

	started := time.Now()
	view, err := s.launcher.Start(process.Spec{
		Package: pkg,
		Dir:     dir,
		Port:    port,
		URL:     url,
		LogPath: logPath,
		Command: s.opts.Helper,
		Args:    []string{dir, fmt.Sprint(port), secrets},
	})
	if err != nil {
		logger.Error("spawning helper", "error", err)
		s.metrics.ObserveServerStart(string(StateFailed), time.Since(started))
		return Outcome{State: StateFailed, Message: fmt.Sprintf("Failed to start: %v", err)}
	}
	logger = logger.With("server_id", view.ID)

	poller := &Poller{
		LogPath:  logPath,
		URL:      url,
		Offset:   offset,
		Grace:    s.opts.Grace,
		Interval: s.opts.PollInterval,
		Timeout:  s.opts.Timeout,
		Logger:   logger,
	}
	state := poller.Wait(ctx, started)
	s.metrics.ObserveServerStart(string(state), time.Since(started))

	out := Outcome{State: state, Server: view}
	switch state {
	case StateReady:
		logger.Info("action server ready", "url", url)
		out.Message = ReadyMessage(url)
		return out

	case StateFailed:
		// The helper exits right after logging the marker; let it finish
		// writing so its output is complete.
		s.settle(view.ID, time.Second+s.opts.PollInterval)
		out.Output = s.output(view.ID)
		logger.Warn("action server failed to start")
		out.Message = FailedMessage(out.Output)

	case StateTimedOut, StateCancelled:
		// The server may be half up: ask it to stop, then make sure.
		res := s.client.Shutdown(context.WithoutCancel(ctx), url)
		s.metrics.ObserveShutdown(string(res.Outcome))
		if _, err := s.launcher.Kill(view.ID); err != nil {
			logger.Warn("killing helper", "error", err)
		}
		out.Output = s.output(view.ID)
		if state == StateTimedOut {
			logger.Warn("action server start timed out", "timeout", s.opts.Timeout)
			out.Message = TimedOutMessage(out.Output)
		} else {
			logger.Info("action server start cancelled")
			out.Message = CancelledMessage(out.Output)
		}
	}

	if v, err := s.launcher.Get(view.ID); err == nil {
		out.Server = v
	}
	return out
}

// Stop asks the automation server at url to shut down.
func (s *Supervisor) Stop(ctx context.Context, url string) actionserver.ShutdownResult {
	res := s.client.Shutdown(ctx, url)
	s.metrics.ObserveShutdown(string(res.Outcome))
	return res
}

// StopServer shuts down the server behind a handle, then kills its helper if
// it is still running. After an accepted shutdown the helper gets StopGrace
// to exit first.
func (s *Supervisor) StopServer(ctx context.Context, id string) (actionserver.ShutdownResult, error) {
	view, err := s.launcher.Get(id)
	if err != nil {
		return actionserver.ShutdownResult{}, err
	}
	res := s.Stop(ctx, view.URL)
	if view.Status != process.StatusRunning {
		return res, nil
	}
	if res.Outcome == actionserver.ShutdownStopped {
		s.settle(id, s.opts.StopGrace)
		if v, err := s.launcher.Get(id); err == nil && v.Status != process.StatusRunning {
			return res, nil
		}
	}
	s.logger.Info("killing helper after shutdown request", "server_id", id, "outcome", res.Outcome)
	if _, err := s.launcher.Kill(id); err != nil && !errors.Is(err, process.ErrNotFound) {
		return res, fmt.Errorf("killing helper: %w", err)
	}
	return res, nil
}

// settle waits up to d for the helper behind id to exit.
func (s *Supervisor) settle(id string, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		v, err := s.launcher.Get(id)
		if err != nil || v.Status != process.StatusRunning {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *Supervisor) output(id string) process.Output {
	out, err := s.launcher.Output(id)
	if err != nil {
		s.logger.Debug("helper output unavailable", "server_id", id, "error", err)
	}
	return out
}

// MissingMessage is returned when the package directory does not exist.
func MissingMessage(dir string) string {
	return fmt.Sprintf("Action package '%s' does not exist.", dir)
}

// ReadyMessage is returned once the server announced url.
func ReadyMessage(url string) string {
	return "Action Server started at " + url
}

// FailedMessage is returned when the helper logged the error marker.
func FailedMessage(out process.Output) string {
	return fmt.Sprintf("Failed to start.\n\nStdout:\n%s\n\nStderr:\n%s", out.Stdout, out.Stderr)
}

// TimedOutMessage is returned when neither marker appeared in time.
func TimedOutMessage(out process.Output) string {
	return fmt.Sprintf("Process timed out.\n\nStdout:\n%s\n\nStderr:\n%s", out.Stdout, out.Stderr)
}

// CancelledMessage is returned when the caller gave up waiting.
func CancelledMessage(out process.Output) string {
	return fmt.Sprintf("Start cancelled.\n\nStdout:\n%s\n\nStderr:\n%s", out.Stdout, out.Stderr)
}
