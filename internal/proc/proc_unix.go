//go:build unix

package proc

import (
	"golang.org/x/sys/unix"

	"github.com/decibelvc/rwlock/internal/logger"
)

// Alive reports whether the process with the given pid is currently running.
// Signal 0 checks existence without affecting the target. EPERM or any other
// failure counts as not alive so that an unreadable holder can be reclaimed;
// the error is noted on the debug channel.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}

	if err != unix.ESRCH {
		logger.Debug("liveness check for pid %d failed (%v), treating as not alive", pid, err)
	}
	return false
}
