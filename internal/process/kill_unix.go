//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// KillTree kills pid and every process in its process group by sending
// SIGKILL to the negative PID. Chrome is started as a group leader.
func KillTree(pid int) {
	if pid <= 0 {
		return
	}
	// Best-effort; launcher.Kill() is the fallback for the leader.
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// Alive reports whether a process with this PID still exists.
// Zombies count as alive until reaped.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
