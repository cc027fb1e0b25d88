package rwlock

import (
	"fmt"
	"strings"
)

// Status describes whether a lock path can be acquired and, if not, who is
// blocking it. The concrete type is one of Open, WriteLocked or ReadLocked.
type Status interface {
	// Path returns the resource path the status refers to
	Path() string

	// Open reports whether the requested lock would be granted
	Open() bool

	fmt.Stringer

	status()
}

// StatusOpen indicates the requested lock can be acquired
type StatusOpen struct {
	Resource string
}

// Path returns the resource path
func (s StatusOpen) Path() string { return s.Resource }

// Open reports whether the requested lock would be granted
func (s StatusOpen) Open() bool { return true }

func (s StatusOpen) String() string { return fmt.Sprintf("%s is open", s.Resource) }

func (s StatusOpen) status() {}

// StatusWriteLocked indicates an active writer is blocking the request
type StatusWriteLocked struct {
	Resource string
	Job      Job
}

// Path returns the resource path
func (s StatusWriteLocked) Path() string { return s.Resource }

// Open reports whether the requested lock would be granted
func (s StatusWriteLocked) Open() bool { return false }

func (s StatusWriteLocked) String() string {
	return fmt.Sprintf("%s is write locked by %s", s.Resource, describeJob(s.Job))
}

func (s StatusWriteLocked) status() {}

// StatusReadLocked indicates active readers are blocking a write request
type StatusReadLocked struct {
	Resource string
	Jobs     []Job
}

// Path returns the resource path
func (s StatusReadLocked) Path() string { return s.Resource }

// Open reports whether the requested lock would be granted
func (s StatusReadLocked) Open() bool { return false }

func (s StatusReadLocked) String() string {
	holders := make([]string, len(s.Jobs))
	for i, j := range s.Jobs {
		holders[i] = describeJob(j)
	}
	return fmt.Sprintf("%s is read locked by %s", s.Resource, strings.Join(holders, ", "))
}

func (s StatusReadLocked) status() {}

// describeJob formats a job for human-readable status output
func describeJob(j Job) string {
	if j.Reason != "" {
		return fmt.Sprintf("pid %d (%s)", j.OwnerPID, j.Reason)
	}
	return fmt.Sprintf("pid %d", j.OwnerPID)
}
