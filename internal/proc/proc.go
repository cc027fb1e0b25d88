// Package proc answers whether a given process id is currently alive.
//
// The lock protocol uses this to reap claims left behind by crashed
// processes. Any failure to determine liveness is reported as "not alive":
// erring toward reclaiming a lock beats leaving it wedged forever.
package proc

import "os"

// Self returns the current process id
func Self() int {
	return os.Getpid()
}
