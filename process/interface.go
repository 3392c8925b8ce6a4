package process

// Launcher spawns and tracks automation server helper processes. The MCP
// tools, the supervisor and the dashboard all share one Launcher.
type Launcher interface {
	// Start spawns the helper described by spec and returns its handle.
	Start(spec Spec) (*View, error)

	// Get returns the handle for id with its current status.
	Get(id string) (*View, error)

	// List returns tracked handles matching f, oldest first.
	List(f ListFilter) ([]View, error)

	// Output returns the stdout and stderr captured so far. Only processes
	// started by this Launcher instance have captured output.
	Output(id string) (Output, error)

	// LogTail returns the last ~100KB of the automation server log.
	LogTail(id string) (string, error)

	// Kill terminates the helper's process group, escalating to SIGKILL
	// after the kill timeout. Returns the final View.
	Kill(id string) (*View, error)

	// Shutdown kills every helper started by this Launcher. Safe to call
	// multiple times.
	Shutdown()
}
