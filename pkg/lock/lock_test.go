//go:build unix

package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "alloc.lock"))

	handle, err := l.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}

	handle, err = l.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	defer handle.Release()
}

func TestAcquireTimesOutWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.lock")
	holder, err := New(path).Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire holder: %v", err)
	}
	defer holder.Release()

	start := time.Now()
	_, err = New(path).Acquire(context.Background(), 300*time.Millisecond)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("gave up too early after %s", elapsed)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.lock")
	holder, err := New(path).Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire holder: %v", err)
	}

	time.AfterFunc(250*time.Millisecond, func() {
		_ = holder.Release()
	})

	handle, err := New(path).Acquire(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	defer handle.Release()
}

func TestAcquireCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.lock")
	holder, err := New(path).Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire holder: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = New(path).Acquire(ctx, 10*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

func TestAcquireLeavesFileContentUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.lock")
	if err := os.WriteFile(path, []byte("owned by someone else"), 0o600); err != nil {
		t.Fatalf("write lock file: %v", err)
	}

	handle, err := New(path).Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if string(content) != "owned by someone else" {
		t.Fatalf("lock file content changed: %q", content)
	}
}

func TestAcquireIsMutuallyExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.lock")

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			handle, err := New(path).Acquire(context.Background(), 10*time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer handle.Release()

			current := holders.Add(1)
			for {
				seen := maxSeen.Load()
				if current <= seen || maxSeen.CompareAndSwap(seen, current) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			holders.Add(-1)
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen.Load())
	}
}
