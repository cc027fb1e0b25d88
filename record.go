package rwlock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/decibelvc/rwlock/internal/logger"
)

// FormatVersion is the on-disk lock record format version
const FormatVersion = "1"

// Job represents one recorded claim on a lock path: a single read claim or
// the single write claim
type Job struct {
	// ID is the claiming handle's instance token
	ID string `json:"id"`

	// OwnerPID is the process id that owns the claim
	OwnerPID int `json:"ownerProcessId"`

	// Reason is an optional human-readable reason for the claim
	Reason string `json:"reason,omitempty"`

	// CreatedAt is when the claim was granted
	CreatedAt time.Time `json:"createdAt"`
}

// Record is the persisted state of one lock path
type Record struct {
	// Version is the record format version
	Version string `json:"formatVersion"`

	// Writer is the single write claim, if any
	Writer *Job `json:"writer,omitempty"`

	// Readers is the ordered list of read claims
	Readers []Job `json:"readers"`
}

// newRecord returns an empty record
func newRecord() *Record {
	return &Record{
		Version: FormatVersion,
		Readers: []Job{},
	}
}

// Empty reports whether the record holds no claims at all
func (r *Record) Empty() bool {
	return r.Writer == nil && len(r.Readers) == 0
}

// hasReader reports whether a reader claim with the given id exists
func (r *Record) hasReader(id string) bool {
	for _, j := range r.Readers {
		if j.ID == id {
			return true
		}
	}
	return false
}

// removeReaders drops every reader claim matching the given id and reports
// whether anything was removed
func (r *Record) removeReaders(id string) bool {
	kept := r.Readers[:0]
	for _, j := range r.Readers {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	removed := len(kept) != len(r.Readers)
	r.Readers = kept
	return removed
}

// RecordPath returns the lock record file for a resource path
func RecordPath(path string) string {
	return path + ".lock"
}

// recordPath is the internal alias for RecordPath
func recordPath(path string) string {
	return RecordPath(path)
}

// guardPath returns the exclusive guard file for a resource path
func guardPath(path string) string {
	return path + ".flock"
}

// readRecord reads and parses the lock record at path. A missing file is an
// empty record. Any other read or parse failure is logged and also treated
// as empty: failing open here avoids wedging every future caller on one
// corrupt file, at the cost of dropping whatever the file held.
func readRecord(path string) *Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("could not read lock record %s, treating as empty: %v", path, err)
		}
		return newRecord()
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("could not parse lock record %s, treating as empty: %v", path, err)
		return newRecord()
	}

	if rec.Version == "" {
		rec.Version = FormatVersion
	}
	if rec.Readers == nil {
		rec.Readers = []Job{}
	}
	return &rec
}

// writeRecord persists the lock record at path. An empty record deletes the
// file instead, so an idle lock leaves nothing behind; a record that is
// absent from disk is equivalent to an empty one.
func writeRecord(path string, rec *Record) error {
	if rec.Empty() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove lock record: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock record: %w", err)
	}

	// Write atomically: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
