// Package guard provides the exclusive cross-process lock that serializes
// every read-modify-write of a lock record file. It is a thin layer over
// flock(2); the read/write semantics live above it.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/decibelvc/rwlock/internal/logger"
)

const (
	// DefaultTimeout is the default guard acquisition timeout
	DefaultTimeout = 30 * time.Second

	// RetryInterval is how long to wait between guard attempts
	RetryInterval = 10 * time.Millisecond
)

// Guard represents a held exclusive guard on one path
type Guard struct {
	path string
	fl   *flock.Flock
}

// Acquire acquires the guard for the given path, polling until the context
// deadline. If ctx carries no deadline, DefaultTimeout applies.
func Acquire(ctx context.Context, path string) (*Guard, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	fl := flock.New(path)
	logger.Trace("guard: acquiring %s", path)

	startTime := time.Now()
	locked, err := fl.TryLockContext(ctx, RetryInterval)
	if err != nil {
		elapsed := time.Since(startTime)
		return nil, fmt.Errorf("failed to acquire guard %s after %v: %w", path, elapsed, err)
	}
	if !locked {
		elapsed := time.Since(startTime)
		return nil, fmt.Errorf("guard acquisition timeout for %s after %v", path, elapsed)
	}

	logger.Trace("guard: acquired %s", path)
	return &Guard{path: path, fl: fl}, nil
}

// AcquireBlocking acquires the guard without a polling loop, blocking in the
// kernel until the guard is available. Unlike Acquire it never sleeps between
// attempts, so it is usable from exit handlers.
func AcquireBlocking(path string) (*Guard, error) {
	fl := flock.New(path)
	logger.Trace("guard: acquiring %s (blocking)", path)

	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire guard %s: %w", path, err)
	}

	logger.Trace("guard: acquired %s", path)
	return &Guard{path: path, fl: fl}, nil
}

// Release releases the guard. Releasing twice is a no-op.
func (g *Guard) Release() error {
	if g.fl == nil {
		return nil
	}

	err := g.fl.Unlock()
	g.fl = nil
	logger.Trace("guard: released %s", g.path)

	if err != nil {
		return fmt.Errorf("failed to release guard %s: %w", g.path, err)
	}
	return nil
}

// With runs fn while holding the guard for path. The guard is released on
// every exit path, including when fn returns an error.
func With(ctx context.Context, path string, fn func() error) error {
	g, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer g.Release()

	return fn()
}

// WithBlocking runs fn while holding the guard for path, acquiring the guard
// with AcquireBlocking
func WithBlocking(path string, fn func() error) error {
	g, err := AcquireBlocking(path)
	if err != nil {
		return err
	}
	defer g.Release()

	return fn()
}
