package process

import "time"

// Status represents the current state of a launched helper process.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// Spec describes one helper launch.
type Spec struct {
	// Package is the automation package name, for display and filtering.
	Package string
	// Dir is the automation package directory.
	Dir string
	// Port is the port claimed for the automation server.
	Port int
	// URL is the base URL the automation server is expected to serve on.
	URL string
	// LogPath is the log file the helper writes to.
	LogPath string
	// Command is the helper argv prefix. It is persisted.
	Command []string
	// Args are appended to Command. They may carry secrets and are never
	// persisted or logged.
	Args []string
}

// Record is the persisted handle of a launched automation server.
type Record struct {
	ID        string     `json:"id"`
	Package   string     `json:"package"`
	Dir       string     `json:"dir"`
	Port      int        `json:"port"`
	URL       string     `json:"url"`
	LogPath   string     `json:"log_path"`
	Command   []string   `json:"command"`
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

// View extends Record with a computed Status.
type View struct {
	Record
	Status Status `json:"status"`
}

// Output is the captured stdout and stderr of a helper process.
type Output struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// ListFilter controls which records List returns.
type ListFilter struct {
	// Package limits results to one automation package. Empty means all.
	Package string
	// ExitedSince drops exited and failed records older than this. Zero
	// keeps everything.
	ExitedSince time.Duration
	// RunningOnly drops every exited and failed record.
	RunningOnly bool
}
