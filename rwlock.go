// Package rwlock implements a cross-process read/write lock backed by a
// small JSON record on disk. Multiple processes coordinate shared (read) and
// exclusive (write) access to a named resource with no coordinator beyond
// the filesystem: every change to the record happens under an exclusive
// flock-based guard, claims left behind by dead processes are reaped on the
// next status check, and repeated acquisitions from one handle are counted
// locally so only the outermost add and remove touch shared state.
package rwlock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/decibelvc/rwlock/internal/guard"
	"github.com/decibelvc/rwlock/internal/idgen"
	"github.com/decibelvc/rwlock/internal/logger"
	"github.com/decibelvc/rwlock/internal/proc"
)

// Type is the kind of lock being requested
type Type int

const (
	// Read is a shared lock: any number of readers may hold it at once
	Read Type = iota
	// Write is an exclusive lock: one writer excludes everyone else
	Write
)

// String returns the string representation of a lock type
func (t Type) String() string {
	switch t {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

const (
	// DefaultTimeout is the default acquisition timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRetryInterval is the initial wait between acquisition attempts
	DefaultRetryInterval = 10 * time.Millisecond
)

// Options controls a single acquisition
type Options struct {
	// Reason is an optional human-readable reason recorded with the claim
	Reason string

	// Timeout is the total retry budget. Zero means the handle default;
	// a negative value makes exactly one attempt with no retry.
	Timeout time.Duration

	// RetryInterval is the initial wait between attempts; it doubles after
	// every failed attempt, with jitter. Zero means the handle default.
	RetryInterval time.Duration

	// OnBlocked is invoked with the blocking status the first time an
	// acquisition attempt fails, and only once for the whole retry loop
	OnBlocked func(Status)
}

// Handle is one in-process handle on a lock path. Each handle has its own
// instance token and reentrancy counters; claims it writes into the shared
// record carry that token so only this handle can release them.
//
// A handle is safe for concurrent use. Concurrent acquisitions or releases
// of the same lock type share a single underlying attempt.
type Handle struct {
	path       string
	instanceID string

	mu     sync.Mutex
	reads  int
	writes int

	timeout       time.Duration
	retryInterval time.Duration
	onBlocked     func(Status)

	flight singleflight.Group
}

// New creates a handle for the given resource path and registers it for the
// process-exit cleanup sweep. Handles on the same path are independent: each
// gets its own instance token and counters.
func New(path string) (*Handle, error) {
	return NewWithDefaults(path, Options{})
}

// NewWithDefaults creates a handle whose per-call option defaults come from
// defaults instead of the package-level ones
func NewWithDefaults(path string, defaults Options) (*Handle, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path cannot be empty")
	}

	token, err := idgen.NewToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate instance token: %w", err)
	}

	h := &Handle{
		path:          path,
		instanceID:    token,
		timeout:       DefaultTimeout,
		retryInterval: DefaultRetryInterval,
		onBlocked:     defaults.OnBlocked,
	}
	if defaults.Timeout != 0 {
		h.timeout = defaults.Timeout
	}
	if defaults.RetryInterval > 0 {
		h.retryInterval = defaults.RetryInterval
	}

	register(h)
	return h, nil
}

// Path returns the resource path the handle is bound to
func (h *Handle) Path() string {
	return h.path
}

// InstanceID returns the handle's unique instance token
func (h *Handle) InstanceID() string {
	return h.instanceID
}

// Add acquires one reference on the given lock type, retrying with jittered
// exponential backoff until the timeout budget runs out. Only the first
// reference performs file-level work; nested calls just count. A blocked
// acquisition that exhausts its budget returns *TimeoutError carrying the
// last observed status.
func (h *Handle) Add(ctx context.Context, t Type, opts Options) error {
	return h.add(ctx, t, opts, false)
}

// AddNow is the non-retrying form of Add: it makes exactly one attempt and
// never sleeps, so it is usable from exit and signal handlers
func (h *Handle) AddNow(t Type, opts Options) error {
	return h.add(context.Background(), t, opts, true)
}

// TryAcquire makes a single acquisition attempt with no retry, failing with
// *TimeoutError if the lock is not open
func (h *Handle) TryAcquire(ctx context.Context, t Type, reason string) error {
	opts := Options{Reason: reason, Timeout: -1}
	return h.add(ctx, t, opts, false)
}

func (h *Handle) add(ctx context.Context, t Type, opts Options, now bool) error {
	h.mu.Lock()
	if h.countLocked(t) > 0 {
		h.incLocked(t)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	// Coalesce concurrent first acquisitions of the same type so the record
	// never ends up with two claims from one handle
	key := "add:" + t.String()
	_, err, _ := h.flight.Do(key, func() (interface{}, error) {
		if now {
			return nil, h.acquireOnce(t, opts)
		}
		return nil, h.acquireRetry(ctx, t, opts)
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.incLocked(t)
	h.mu.Unlock()
	return nil
}

// acquireRetry runs the acquisition loop: attempt, notify once on the first
// blocked status, then sleep a jittered interval, deduct it from the budget,
// double the interval and try again until the budget goes strictly negative.
func (h *Handle) acquireRetry(ctx context.Context, t Type, opts Options) error {
	timeout, interval, onBlocked := h.resolve(opts)

	notified := false
	for {
		st, err := h.attempt(ctx, t, opts.Reason, false, true)
		if err != nil {
			return err
		}
		if st.Open() {
			return nil
		}

		logger.Debug("lock %s: %s blocked: %s", h.path, t, st)
		if !notified {
			notified = true
			if onBlocked != nil {
				onBlocked(st)
			}
		}

		if timeout < 0 {
			return &TimeoutError{Resource: h.path, Status: st}
		}

		wait := jitter(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		timeout -= wait
		interval *= 2
	}
}

// acquireOnce makes a single attempt using the blocking guard, so it never
// sleeps in a retry loop
func (h *Handle) acquireOnce(t Type, opts Options) error {
	st, err := h.attempt(context.Background(), t, opts.Reason, true, true)
	if err != nil {
		return err
	}
	if !st.Open() {
		return &TimeoutError{Resource: h.path, Status: st}
	}
	return nil
}

// attempt performs one classify-and-maybe-grant pass against the record,
// entirely inside the exclusive guard for the record path. Stale claims
// purged during classification are persisted even when the request itself
// is blocked or acquire is false.
func (h *Handle) attempt(ctx context.Context, t Type, reason string, blocking, acquire bool) (Status, error) {
	// A handle already holding the write lock is granted read or write
	// without consulting the record
	h.mu.Lock()
	selfWrite := h.writes > 0
	h.mu.Unlock()
	if selfWrite {
		return StatusOpen{Resource: h.path}, nil
	}

	recPath := recordPath(h.path)
	var st Status
	section := func() error {
		rec := readRecord(recPath)
		var changed bool
		st, changed = h.classify(t, rec)
		if acquire && st.Open() {
			if h.grant(t, reason, rec) {
				changed = true
			}
		}
		if changed {
			return writeRecord(recPath, rec)
		}
		return nil
	}

	var err error
	if blocking {
		err = guard.WithBlocking(guardPath(h.path), section)
	} else {
		err = guard.With(ctx, guardPath(h.path), section)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// classify computes the status of a request of type t against rec, reaping
// dead holders as it goes. Each pass of the loop either returns or strictly
// removes a dead claim, so it terminates. The reported bool is whether rec
// was mutated and must be re-persisted.
func (h *Handle) classify(t Type, rec *Record) (Status, bool) {
	changed := false
	for {
		h.mu.Lock()
		selfWrite := h.writes > 0
		h.mu.Unlock()
		if selfWrite {
			return StatusOpen{Resource: h.path}, changed
		}

		if rec.Writer != nil {
			if !proc.Alive(rec.Writer.OwnerPID) {
				logger.Debug("lock %s: reaping dead writer pid %d", h.path, rec.Writer.OwnerPID)
				rec.Writer = nil
				changed = true
				continue
			}
			return StatusWriteLocked{Resource: h.path, Job: *rec.Writer}, changed
		}

		if t == Write && len(rec.Readers) > 0 {
			if h.purgeDeadReaders(rec) {
				changed = true
				continue
			}

			// A handle may take the write lock while it is the sole
			// remaining reader
			onlySelf := true
			for _, j := range rec.Readers {
				if j.ID != h.instanceID {
					onlySelf = false
					break
				}
			}
			if onlySelf {
				return StatusOpen{Resource: h.path}, changed
			}

			jobs := make([]Job, len(rec.Readers))
			copy(jobs, rec.Readers)
			return StatusReadLocked{Resource: h.path, Jobs: jobs}, changed
		}

		return StatusOpen{Resource: h.path}, changed
	}
}

// purgeDeadReaders drops reader claims whose owning process is gone and
// reports whether any were removed
func (h *Handle) purgeDeadReaders(rec *Record) bool {
	kept := rec.Readers[:0]
	for _, j := range rec.Readers {
		if proc.Alive(j.OwnerPID) {
			kept = append(kept, j)
			continue
		}
		logger.Debug("lock %s: reaping dead reader pid %d (%s)", h.path, j.OwnerPID, j.ID)
	}
	purged := len(kept) != len(rec.Readers)
	rec.Readers = kept
	return purged
}

// grant writes a claim for this handle into rec and reports whether rec
// changed. An attempt that already has a claim on disk (a coalesced retry)
// is left alone so reader ids stay unique.
func (h *Handle) grant(t Type, reason string, rec *Record) bool {
	if t == Read && rec.hasReader(h.instanceID) {
		return false
	}
	if t == Write && rec.Writer != nil && rec.Writer.ID == h.instanceID {
		return false
	}

	job := Job{
		ID:        h.instanceID,
		OwnerPID:  proc.Self(),
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if t == Write {
		rec.Writer = &job
	} else {
		rec.Readers = append(rec.Readers, job)
	}
	logger.Debug("lock %s: granted %s to %s", h.path, t, h.instanceID)
	return true
}

// Remove drops one reference on the given lock type. The last reference
// removes the handle's claim from the record; removing an unheld type is a
// no-op.
func (h *Handle) Remove(ctx context.Context, t Type) error {
	return h.remove(ctx, t, false)
}

// RemoveNow is the form of Remove usable from exit handlers: it acquires the
// guard without a sleeping retry loop
func (h *Handle) RemoveNow(t Type) error {
	return h.remove(context.Background(), t, true)
}

func (h *Handle) remove(ctx context.Context, t Type, now bool) error {
	h.mu.Lock()
	n := h.countLocked(t)
	if n == 0 {
		h.mu.Unlock()
		return nil
	}
	h.decLocked(t)
	h.mu.Unlock()

	// Only the 1 -> 0 transition touches shared state
	if n > 1 {
		return nil
	}
	return h.releaseShared(ctx, t, now)
}

// Unlock unconditionally drops every local reference of the given types and
// removes the matching claims from the record, whatever the current counts.
// With no types it unlocks both write and read.
func (h *Handle) Unlock(ctx context.Context, types ...Type) error {
	return h.unlock(ctx, false, types...)
}

// UnlockNow is the form of Unlock usable from exit handlers
func (h *Handle) UnlockNow(types ...Type) error {
	return h.unlock(context.Background(), true, types...)
}

func (h *Handle) unlock(ctx context.Context, now bool, types ...Type) error {
	if len(types) == 0 {
		types = []Type{Write, Read}
	}

	var firstErr error
	for _, t := range types {
		h.mu.Lock()
		h.setCountLocked(t, 0)
		h.mu.Unlock()

		if err := h.releaseShared(ctx, t, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// releaseShared coalesces concurrent releases of the same type into one
// record update
func (h *Handle) releaseShared(ctx context.Context, t Type, blocking bool) error {
	key := "remove:" + t.String()
	_, err, _ := h.flight.Do(key, func() (interface{}, error) {
		return nil, h.release(ctx, t, blocking)
	})
	return err
}

// release removes this handle's claim of type t from the record
func (h *Handle) release(ctx context.Context, t Type, blocking bool) error {
	recPath := recordPath(h.path)
	section := func() error {
		rec := readRecord(recPath)
		changed := false
		switch t {
		case Read:
			changed = rec.removeReaders(h.instanceID)
		case Write:
			if rec.Writer != nil && rec.Writer.ID == h.instanceID {
				rec.Writer = nil
				changed = true
			}
		}
		if !changed {
			return nil
		}
		logger.Debug("lock %s: released %s claim %s", h.path, t, h.instanceID)
		return writeRecord(recPath, rec)
	}

	if blocking {
		return guard.WithBlocking(guardPath(h.path), section)
	}
	return guard.With(ctx, guardPath(h.path), section)
}

// Check reports the current status of a request of type t. It never grants
// anything, but reaping dead holders may rewrite the record as a side
// effect.
func (h *Handle) Check(ctx context.Context, t Type) (Status, error) {
	return h.attempt(ctx, t, "", false, false)
}

// CheckNow is the form of Check usable from exit handlers
func (h *Handle) CheckNow(t Type) (Status, error) {
	return h.attempt(context.Background(), t, "", true, false)
}

// Clear removes every claim for path, deleting the record file. It is an
// administrative escape hatch and does not consult claim ownership.
func Clear(ctx context.Context, path string) error {
	return guard.With(ctx, guardPath(path), func() error {
		return writeRecord(recordPath(path), newRecord())
	})
}

// resolve merges per-call options with the handle defaults
func (h *Handle) resolve(opts Options) (timeout, interval time.Duration, onBlocked func(Status)) {
	timeout = h.timeout
	if opts.Timeout != 0 {
		timeout = opts.Timeout
	}
	interval = h.retryInterval
	if opts.RetryInterval > 0 {
		interval = opts.RetryInterval
	}
	onBlocked = h.onBlocked
	if opts.OnBlocked != nil {
		onBlocked = opts.OnBlocked
	}
	return timeout, interval, onBlocked
}

// jitter draws a wait uniformly from [interval/2, interval*2]
func jitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	lo := interval / 2
	hi := interval * 2
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

func (h *Handle) countLocked(t Type) int {
	if t == Write {
		return h.writes
	}
	return h.reads
}

func (h *Handle) incLocked(t Type) {
	if t == Write {
		h.writes++
	} else {
		h.reads++
	}
}

func (h *Handle) decLocked(t Type) {
	if t == Write && h.writes > 0 {
		h.writes--
	} else if t == Read && h.reads > 0 {
		h.reads--
	}
}

func (h *Handle) setCountLocked(t Type, n int) {
	if t == Write {
		h.writes = n
	} else {
		h.reads = n
	}
}
