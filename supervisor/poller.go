package supervisor

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrorMarker is the substring the helper writes to the log when the
// automation server could not be started.
const ErrorMarker = "Error executing action-server"

// State is the poller's position in the start-up state machine.
type State string

const (
	StateWaiting   State = "waiting"
	StateReady     State = "ready"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
	// StateMissing is reported by Supervisor.Start when the package
	// directory does not exist; the poller itself never enters it.
	StateMissing State = "missing"
)

// Terminal reports whether s ends a start attempt.
func (s State) Terminal() bool {
	return s != StateWaiting
}

// classify maps one log line to a state. The URL is checked before the
// error marker, so a line carrying both counts as ready.
func classify(line, url string) State {
	switch {
	case strings.Contains(line, url):
		return StateReady
	case strings.Contains(line, ErrorMarker):
		return StateFailed
	default:
		return StateWaiting
	}
}

// Poller watches an automation server log until it reports readiness or
// failure, or until the timeout elapses.
type Poller struct {
	LogPath string
	URL     string
	// Offset is where scanning starts; earlier content is ignored.
	Offset int64

	Grace    time.Duration
	Interval time.Duration
	Timeout  time.Duration

	Logger *slog.Logger
}

// Wait blocks until a terminal state is reached. The timeout is measured from
// started, the moment the helper was spawned. Wait returns StateCancelled if
// ctx ends first.
func (p *Poller) Wait(ctx context.Context, started time.Time) State {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if !sleep(ctx, p.Grace) {
		return StateCancelled
	}

	wake, stop := p.watch(logger)
	defer stop()

	t := newTailer(p.LogPath, p.Offset)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if time.Since(started) > p.Timeout {
			return StateTimedOut
		}

		lines, err := t.lines()
		if err != nil {
			// Transient: the helper may be rotating or recreating the file.
			logger.Debug("reading server log", "path", p.LogPath, "error", err)
		}
		for _, line := range lines {
			if state := classify(line, p.URL); state.Terminal() {
				logger.Debug("log line classified", "state", state, "line", line)
				return state
			}
		}

		select {
		case <-ctx.Done():
			return StateCancelled
		case <-ticker.C:
		case <-wake:
		}
	}
}

// watch returns a channel that fires when the log file changes. Without
// fsnotify support the channel never fires and the ticker alone drives
// polling.
func (p *Poller) watch(logger *slog.Logger) (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug("fsnotify unavailable, polling only", "error", err)
		return wake, func() {}
	}
	if err := w.Add(filepath.Dir(p.LogPath)); err != nil {
		logger.Debug("watching log directory", "path", p.LogPath, "error", err)
		w.Close()
		return wake, func() {}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(p.LogPath) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return wake, func() {
		close(done)
		w.Close()
	}
}

// sleep waits for d or until ctx ends, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
