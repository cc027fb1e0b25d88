package rwlock

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// tempResource returns a resource path inside a fresh temp directory
func tempResource(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "resource")
}

// deadPID returns a pid that is guaranteed to have exited
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run child process: %v", err)
	}
	return cmd.Process.Pid
}

func TestWriteExcludesOthers(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	a, err := New(path)
	if err != nil {
		t.Fatalf("failed to create handle: %v", err)
	}

	if err := a.Add(ctx, Write, Options{Reason: "build"}); err != nil {
		t.Fatalf("failed to acquire write lock: %v", err)
	}

	rec := readRecord(recordPath(path))
	if rec.Writer == nil {
		t.Fatal("record has no writer after write acquisition")
	}
	if rec.Writer.Reason != "build" {
		t.Errorf("writer reason = %q, want %q", rec.Writer.Reason, "build")
	}

	b, err := New(path)
	if err != nil {
		t.Fatalf("failed to create handle: %v", err)
	}

	st, err := b.Check(ctx, Read)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	wl, ok := st.(StatusWriteLocked)
	if !ok {
		t.Fatalf("status = %T, want StatusWriteLocked", st)
	}
	if wl.Job.ID != a.InstanceID() {
		t.Errorf("blocking job id = %q, want %q", wl.Job.ID, a.InstanceID())
	}

	if err := a.Remove(ctx, Write); err != nil {
		t.Fatalf("failed to release write lock: %v", err)
	}

	// An empty record leaves no file behind
	if _, err := os.Stat(recordPath(path)); !os.IsNotExist(err) {
		t.Errorf("record file still exists after release (stat err = %v)", err)
	}

	st, err = b.Check(ctx, Read)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !st.Open() {
		t.Errorf("status after release = %s, want open", st)
	}
}

func TestReadersBlockWriter(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	a, _ := New(path)
	b, _ := New(path)
	if err := a.Add(ctx, Read, Options{}); err != nil {
		t.Fatalf("reader a failed: %v", err)
	}
	if err := b.Add(ctx, Read, Options{}); err != nil {
		t.Fatalf("reader b failed: %v", err)
	}

	rec := readRecord(recordPath(path))
	if len(rec.Readers) != 2 {
		t.Fatalf("record has %d readers, want 2", len(rec.Readers))
	}

	c, _ := New(path)
	err := c.Add(ctx, Write, Options{Timeout: -1})
	if err == nil {
		t.Fatal("write acquisition succeeded with active readers")
	}

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *TimeoutError", err)
	}
	rl, ok := te.Status.(StatusReadLocked)
	if !ok {
		t.Fatalf("blocking status = %T, want StatusReadLocked", te.Status)
	}
	if len(rl.Jobs) != 2 {
		t.Errorf("blocking status names %d readers, want 2", len(rl.Jobs))
	}
}

func TestReadReentrancy(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	h, _ := New(path)
	const n = 5
	for i := 0; i < n; i++ {
		if err := h.Add(ctx, Read, Options{}); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	// Nested adds share one claim on disk
	rec := readRecord(recordPath(path))
	if len(rec.Readers) != 1 {
		t.Fatalf("record has %d readers after %d nested adds, want 1", len(rec.Readers), n)
	}

	for i := 0; i < n-1; i++ {
		if err := h.Remove(ctx, Read); err != nil {
			t.Fatalf("remove %d failed: %v", i, err)
		}
	}

	rec = readRecord(recordPath(path))
	if len(rec.Readers) != 1 {
		t.Fatalf("claim released before the last remove")
	}

	if err := h.Remove(ctx, Read); err != nil {
		t.Fatalf("final remove failed: %v", err)
	}
	if _, err := os.Stat(recordPath(path)); !os.IsNotExist(err) {
		t.Errorf("record file still exists after final remove")
	}

	// Removing an unheld type is a no-op
	if err := h.Remove(ctx, Read); err != nil {
		t.Errorf("remove of unheld lock failed: %v", err)
	}
}

func TestSelfOwnershipShortCircuit(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	h, _ := New(path)
	if err := h.Add(ctx, Write, Options{}); err != nil {
		t.Fatalf("failed to acquire write lock: %v", err)
	}

	// Plant a foreign writer on disk. A handle holding write must still be
	// granted both types without consulting the record.
	foreign := newRecord()
	foreign.Writer = &Job{ID: "foreign", OwnerPID: os.Getpid(), CreatedAt: time.Now().UTC()}
	if err := writeRecord(recordPath(path), foreign); err != nil {
		t.Fatalf("failed to plant record: %v", err)
	}

	for _, typ := range []Type{Read, Write} {
		st, err := h.Check(ctx, typ)
		if err != nil {
			t.Fatalf("check %s failed: %v", typ, err)
		}
		if !st.Open() {
			t.Errorf("check %s = %s, want open", typ, st)
		}
	}

	// The planted record was not touched
	rec := readRecord(recordPath(path))
	if rec.Writer == nil || rec.Writer.ID != "foreign" {
		t.Error("self-ownership check mutated the record")
	}
}

func TestStaleWriterReclaim(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	rec := newRecord()
	rec.Writer = &Job{ID: "stale", OwnerPID: deadPID(t), CreatedAt: time.Now().UTC()}
	if err := writeRecord(recordPath(path), rec); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}

	h, _ := New(path)
	st, err := h.Check(ctx, Write)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !st.Open() {
		t.Errorf("status with dead writer = %s, want open", st)
	}

	// The purged record became empty, so the file is gone
	if _, err := os.Stat(recordPath(path)); !os.IsNotExist(err) {
		t.Errorf("record file still exists after reaping")
	}
}

func TestStaleReaderReclaim(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	rec := newRecord()
	rec.Readers = []Job{
		{ID: "dead", OwnerPID: deadPID(t), CreatedAt: time.Now().UTC()},
		{ID: "live", OwnerPID: os.Getpid(), CreatedAt: time.Now().UTC()},
	}
	if err := writeRecord(recordPath(path), rec); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}

	h, _ := New(path)
	st, err := h.Check(ctx, Write)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	rl, ok := st.(StatusReadLocked)
	if !ok {
		t.Fatalf("status = %T, want StatusReadLocked", st)
	}
	if len(rl.Jobs) != 1 || rl.Jobs[0].ID != "live" {
		t.Errorf("surviving readers = %+v, want only the live one", rl.Jobs)
	}

	rec = readRecord(recordPath(path))
	if len(rec.Readers) != 1 {
		t.Errorf("record has %d readers after reaping, want 1", len(rec.Readers))
	}
}

func TestWriteWhileSoleReader(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	h, _ := New(path)
	if err := h.Add(ctx, Read, Options{}); err != nil {
		t.Fatalf("read acquisition failed: %v", err)
	}

	if err := h.Add(ctx, Write, Options{Timeout: -1}); err != nil {
		t.Fatalf("write acquisition as sole reader failed: %v", err)
	}

	rec := readRecord(recordPath(path))
	if rec.Writer == nil || rec.Writer.ID != h.InstanceID() {
		t.Fatal("record has no writer claim for the handle")
	}

	// A second handle may not acquire read while the upgrade is held
	other, _ := New(path)
	if err := other.Add(ctx, Read, Options{Timeout: -1}); err == nil {
		t.Error("read acquisition succeeded against an active writer")
	}

	if err := h.Remove(ctx, Write); err != nil {
		t.Fatalf("write release failed: %v", err)
	}
	if err := h.Remove(ctx, Read); err != nil {
		t.Fatalf("read release failed: %v", err)
	}
	if _, err := os.Stat(recordPath(path)); !os.IsNotExist(err) {
		t.Errorf("record file still exists after releasing everything")
	}
}

func TestUnlockForcesRelease(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	h, _ := New(path)
	for i := 0; i < 3; i++ {
		if err := h.Add(ctx, Read, Options{}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	// Unlock ignores the nesting depth
	if err := h.Unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	if _, err := os.Stat(recordPath(path)); !os.IsNotExist(err) {
		t.Errorf("record file still exists after unlock")
	}

	st, err := h.Check(ctx, Write)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !st.Open() {
		t.Errorf("status after unlock = %s, want open", st)
	}
}

func TestTryAcquire(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	a, _ := New(path)
	if err := a.TryAcquire(ctx, Write, "first"); err != nil {
		t.Fatalf("try-acquire on open lock failed: %v", err)
	}

	b, _ := New(path)
	start := time.Now()
	err := b.TryAcquire(ctx, Write, "second")
	elapsed := time.Since(start)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if _, ok := te.Status.(StatusWriteLocked); !ok {
		t.Errorf("blocking status = %T, want StatusWriteLocked", te.Status)
	}
	// A single attempt must not sit in the retry loop
	if elapsed > 2*time.Second {
		t.Errorf("try-acquire took %v, expected no retry loop", elapsed)
	}
}

func TestOnBlockedFiresOnce(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	a, _ := New(path)
	if err := a.Add(ctx, Write, Options{}); err != nil {
		t.Fatalf("failed to acquire write lock: %v", err)
	}

	var mu sync.Mutex
	blocked := 0
	b, _ := New(path)
	err := b.Add(ctx, Read, Options{
		Timeout:       150 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
		OnBlocked: func(st Status) {
			mu.Lock()
			blocked++
			mu.Unlock()
		},
	})

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if blocked != 1 {
		t.Errorf("OnBlocked fired %d times, want exactly 1", blocked)
	}
}

func TestConcurrentAddsShareOneGrant(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	h, _ := New(path)

	const goroutines = 10
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Add(ctx, Read, Options{}); err != nil {
				t.Errorf("concurrent add failed: %v", err)
			}
		}()
	}
	wg.Wait()

	rec := readRecord(recordPath(path))
	if len(rec.Readers) != 1 {
		t.Fatalf("record has %d readers after concurrent adds, want 1", len(rec.Readers))
	}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Remove(ctx, Read); err != nil {
				t.Errorf("concurrent remove failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := os.Stat(recordPath(path)); !os.IsNotExist(err) {
		t.Errorf("record file still exists after all removes")
	}
}

func TestCheckFailsOpenOnCorruptRecord(t *testing.T) {
	path := tempResource(t)
	ctx := context.Background()

	if err := os.WriteFile(recordPath(path), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt record: %v", err)
	}

	h, _ := New(path)
	st, err := h.Check(ctx, Write)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !st.Open() {
		t.Errorf("status with corrupt record = %s, want open", st)
	}
}

func TestContextCancellationAbortsRetry(t *testing.T) {
	path := tempResource(t)

	a, _ := New(path)
	if err := a.Add(context.Background(), Write, Options{}); err != nil {
		t.Fatalf("failed to acquire write lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	b, _ := New(path)
	start := time.Now()
	err := b.Add(ctx, Write, Options{Timeout: time.Minute, RetryInterval: 5 * time.Millisecond})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("acquisition succeeded against a held write lock")
	}
	if elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, expected prompt abort", elapsed)
	}
}

func TestJitterBounds(t *testing.T) {
	interval := 10 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := jitter(interval)
		if d < interval/2 || d > interval*2 {
			t.Fatalf("jitter(%v) = %v, want within [%v, %v]", interval, d, interval/2, interval*2)
		}
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Read, "read"},
		{Write, "write"},
		{Type(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
