//go:build windows

package proc

import (
	"golang.org/x/sys/windows"

	"github.com/decibelvc/rwlock/internal/logger"
)

// Alive reports whether the process with the given pid is currently running.
// Any failure counts as not alive so that an unreadable holder can be
// reclaimed; the error is noted on the debug channel.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		logger.Debug("liveness check for pid %d failed (%v), treating as not alive", pid, err)
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		logger.Debug("liveness check for pid %d failed (%v), treating as not alive", pid, err)
		return false
	}
	return code == windows.STILL_ACTIVE
}
