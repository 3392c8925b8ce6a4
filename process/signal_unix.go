//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// detach puts the helper in its own process group so it is not killed when
// the MCP client closes our stdin, and so the whole group can be signalled.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

func forceKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// alive reports whether pid still exists, using the signal-0 probe.
func alive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, syscall.Signal(0)) == nil
}
