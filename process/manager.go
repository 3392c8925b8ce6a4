package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"actions-bootstrapper/store"
)

const (
	keyPrefix  = "server:"
	maxLogRead = 100 * 1024 // 100KB
)

// ErrNotFound is returned for an unknown handle ID.
var ErrNotFound = errors.New("server handle not found")

// ErrNoOutput is returned by Output for handles started by another session.
var ErrNoOutput = errors.New("output was not captured by this session")

// live is the in-memory half of a handle started by this Manager.
type live struct {
	cmd    *exec.Cmd
	stdout *captureBuffer
	stderr *captureBuffer
	done   chan struct{}
}

// Manager launches helper processes, persists their handles in a Store and
// captures their output in memory.
type Manager struct {
	store       store.Store
	logger      *slog.Logger
	killTimeout time.Duration

	mu       sync.Mutex
	running  map[string]*live
	finished map[string]*live

	once sync.Once
}

var _ Launcher = (*Manager)(nil)

// NewManager creates a Manager persisting handles in st. killTimeout is how
// long Kill waits after SIGTERM before sending SIGKILL.
func NewManager(st store.Store, logger *slog.Logger, killTimeout time.Duration) *Manager {
	if killTimeout <= 0 {
		killTimeout = 5 * time.Second
	}
	return &Manager{
		store:       st,
		logger:      logger.With("component", "process"),
		killTimeout: killTimeout,
		running:     make(map[string]*live),
		finished:    make(map[string]*live),
	}
}

// Start spawns the helper and returns its handle.
func (m *Manager) Start(spec Spec) (*View, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("helper command is empty")
	}

	argv := append(append([]string{}, spec.Command[1:]...), spec.Args...)
	cmd := exec.Command(spec.Command[0], argv...)
	stdout, stderr := &captureBuffer{}, &captureBuffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Grandchildren holding the pipes must not keep Wait blocked forever.
	cmd.WaitDelay = m.killTimeout
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting helper: %w", err)
	}

	rec := Record{
		ID:        uuid.NewString(),
		Package:   spec.Package,
		Dir:       spec.Dir,
		Port:      spec.Port,
		URL:       spec.URL,
		LogPath:   spec.LogPath,
		Command:   spec.Command,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now().UTC(),
	}

	if err := store.PutJSON(m.store, keyPrefix+rec.ID, rec); err != nil {
		_ = forceKill(rec.PID)
		_ = cmd.Wait()
		return nil, fmt.Errorf("persisting server handle: %w", err)
	}

	l := &live{cmd: cmd, stdout: stdout, stderr: stderr, done: make(chan struct{})}
	m.mu.Lock()
	m.running[rec.ID] = l
	m.mu.Unlock()

	m.logger.Info("helper started",
		"id", rec.ID,
		"package", rec.Package,
		"pid", rec.PID,
		"port", rec.Port,
		"command", strings.Join(rec.Command, " "),
	)

	go m.wait(rec, l)

	return &View{Record: rec, Status: StatusRunning}, nil
}

// wait records the helper's exit once it terminates.
func (m *Manager) wait(rec Record, l *live) {
	waitErr := l.cmd.Wait()

	now := time.Now().UTC()
	code := l.cmd.ProcessState.ExitCode()
	rec.ExitedAt = &now
	rec.ExitCode = &code

	// Best-effort; a stale record falls back to the PID probe.
	if err := store.PutJSON(m.store, keyPrefix+rec.ID, rec); err != nil {
		m.logger.Warn("recording helper exit", "id", rec.ID, "error", err)
	}

	m.mu.Lock()
	delete(m.running, rec.ID)
	m.finished[rec.ID] = l
	m.mu.Unlock()
	close(l.done)

	m.logger.Info("helper exited", "id", rec.ID, "exit_code", code, "wait_error", waitErr)
}

// Get returns the handle for id with its current status.
func (m *Manager) Get(id string) (*View, error) {
	rec, err := m.load(id)
	if err != nil {
		return nil, err
	}
	return &View{Record: rec, Status: m.status(rec)}, nil
}

// List returns tracked handles matching f, oldest first.
func (m *Manager) List(f ListFilter) ([]View, error) {
	keys, err := m.store.Keys(keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing server handles: %w", err)
	}

	var cutoff time.Time
	if f.ExitedSince > 0 {
		cutoff = time.Now().UTC().Add(-f.ExitedSince)
	}

	views := make([]View, 0, len(keys))
	for _, key := range keys {
		var rec Record
		if err := store.GetJSON(m.store, key, &rec); err != nil {
			m.logger.Debug("skipping unreadable handle", "key", key, "error", err)
			continue
		}
		if f.Package != "" && rec.Package != f.Package {
			continue
		}
		status := m.status(rec)
		if f.RunningOnly && (status == StatusExited || status == StatusFailed) {
			continue
		}
		if !cutoff.IsZero() && (status == StatusExited || status == StatusFailed) {
			if rec.ExitedAt != nil && rec.ExitedAt.Before(cutoff) {
				continue
			}
		}
		views = append(views, View{Record: rec, Status: status})
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].StartedAt.Before(views[j].StartedAt)
	})
	return views, nil
}

// Output returns the stdout and stderr captured so far.
func (m *Manager) Output(id string) (Output, error) {
	m.mu.Lock()
	l, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		l, ok = m.exited(id)
	}
	if !ok {
		if _, err := m.load(id); err != nil {
			return Output{}, err
		}
		return Output{}, ErrNoOutput
	}
	return Output{Stdout: l.stdout.String(), Stderr: l.stderr.String()}, nil
}

// LogTail returns the last ~100KB of the automation server log.
func (m *Manager) LogTail(id string) (string, error) {
	rec, err := m.load(id)
	if err != nil {
		return "", err
	}

	f, err := os.Open(rec.LogPath)
	if err != nil {
		return "", fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}
	if offset := stat.Size() - maxLogRead; offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return "", fmt.Errorf("seeking log file: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}
	return string(data), nil
}

// Kill sends SIGTERM to the helper's process group, waits up to the kill
// timeout, then SIGKILLs it if still alive.
func (m *Manager) Kill(id string) (*View, error) {
	rec, err := m.load(id)
	if err != nil {
		return nil, err
	}
	return m.kill(rec)
}

func (m *Manager) kill(rec Record) (*View, error) {
	id := rec.ID
	if m.status(rec) != StatusRunning {
		return m.Get(id)
	}

	m.mu.Lock()
	l, ours := m.running[id]
	_, finished := m.finished[id]
	m.mu.Unlock()

	// Exited since rec was loaded; wait has already stored its exit code.
	if finished {
		return m.Get(id)
	}

	m.logger.Info("killing helper", "id", id, "pid", rec.PID)
	_ = terminate(rec.PID)

	if ours {
		select {
		case <-l.done:
		case <-time.After(m.killTimeout):
			_ = forceKill(rec.PID)
			<-l.done
		}
		return m.Get(id)
	}

	// Orphan from an earlier session: nobody will reap it, so poll the PID.
	deadline := time.Now().Add(m.killTimeout)
	for alive(rec.PID) && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if alive(rec.PID) {
		_ = forceKill(rec.PID)
	}
	now := time.Now().UTC()
	code := -1
	rec.ExitedAt = &now
	rec.ExitCode = &code
	if err := store.PutJSON(m.store, keyPrefix+rec.ID, rec); err != nil {
		return nil, fmt.Errorf("recording kill: %w", err)
	}
	return &View{Record: rec, Status: m.status(rec)}, nil
}

// Shutdown kills every helper started by this Manager. Safe to call multiple
// times.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		lives := make(map[string]*live, len(m.running))
		for id, l := range m.running {
			lives[id] = l
		}
		m.mu.Unlock()

		for _, l := range lives {
			_ = terminate(l.cmd.Process.Pid)
		}

		deadline := time.After(m.killTimeout)
		for id, l := range lives {
			select {
			case <-l.done:
			case <-deadline:
				m.logger.Warn("helper ignored SIGTERM, killing", "id", id)
				_ = forceKill(l.cmd.Process.Pid)
				<-l.done
			}
		}
	})
}

// exited keeps output available for handles that finished in this session.
func (m *Manager) exited(id string) (*live, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.finished[id]
	return l, ok
}

func (m *Manager) status(rec Record) Status {
	if rec.ExitCode != nil {
		if *rec.ExitCode == 0 {
			return StatusExited
		}
		return StatusFailed
	}

	m.mu.Lock()
	_, ours := m.running[rec.ID]
	m.mu.Unlock()
	if ours {
		return StatusRunning
	}

	if alive(rec.PID) {
		return StatusRunning
	}
	return StatusUnknown
}

func (m *Manager) load(id string) (Record, error) {
	var rec Record
	err := store.GetJSON(m.store, keyPrefix+id, &rec)
	if errors.Is(err, store.ErrNotFound) {
		return rec, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return rec, err
}
