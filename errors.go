package rwlock

import "fmt"

// TimeoutError is returned when an acquisition exhausts its retry budget, or
// when a single-attempt acquisition finds the lock blocked. Status carries
// the last observed blocking status.
type TimeoutError struct {
	Resource string
	Status   Status
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock timeout: %s", e.Status)
}
