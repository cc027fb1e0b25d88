package rwlock

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/decibelvc/rwlock/internal/logger"
)

// Process-wide handle registry. Every handle is appended at construction,
// including repeated handles for the same path, and swept on process
// termination so a dying process does not leave claims behind. Reaping by
// the next process that checks the lock covers whatever the sweep misses.
var (
	registryMu sync.Mutex
	registry   []*Handle

	exitHookOnce sync.Once
)

// register adds a handle to the process-wide registry and lazily installs
// the termination sweep
func register(h *Handle) {
	registryMu.Lock()
	registry = append(registry, h)
	registryMu.Unlock()

	exitHookOnce.Do(installExitHook)
}

// ReleaseAll force-unlocks both lock types on every registered handle,
// swallowing errors. It is called automatically on SIGINT/SIGTERM; callers
// that exit by other means can defer it from main.
func ReleaseAll() {
	registryMu.Lock()
	handles := make([]*Handle, len(registry))
	copy(handles, registry)
	registryMu.Unlock()

	for _, h := range handles {
		if err := h.UnlockNow(); err != nil {
			logger.Debug("exit cleanup: unlock %s failed: %v", h.Path(), err)
		}
	}
}

// installExitHook starts the signal watcher that runs the cleanup sweep.
// After sweeping, the process exits with the conventional 128+signal code.
func installExitHook() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		logger.Debug("exit cleanup: caught %v, releasing all locks", sig)
		ReleaseAll()
		signal.Stop(c)

		if s, ok := sig.(syscall.Signal); ok {
			os.Exit(128 + int(s))
		}
		os.Exit(1)
	}()
}
