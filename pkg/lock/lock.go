package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/metrics"
)

const defaultPollInterval = 200 * time.Millisecond

var (
	ErrBusy        = errors.New("allocation lock is busy")
	ErrUnsupported = errors.New("file locking is not supported on this platform")
)

// FileLock is an advisory, host-wide exclusive lock backed by flock(2) on a
// well-known path. The file content is never read or written.
type FileLock struct {
	path         string
	pollInterval time.Duration
}

func New(path string) *FileLock {
	return &FileLock{
		path:         path,
		pollInterval: defaultPollInterval,
	}
}

func (l *FileLock) Path() string {
	return l.path
}

// Acquire polls for the lock until it is held, the timeout elapses (ErrBusy)
// or ctx is done.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) (*Handle, error) {
	start := time.Now()
	handle, result, err := l.acquire(ctx, timeout)
	metrics.LockWait.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return handle, err
}

func (l *FileLock) acquire(ctx context.Context, timeout time.Duration) (*Handle, string, error) {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, "failed", fmt.Errorf("failed to open lock file %s: %w", l.path, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		locked, err := tryLock(file)
		if err != nil {
			closeFile(file)
			return nil, "failed", fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
		if locked {
			return &Handle{file: file}, "acquired", nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			closeFile(file)
			return nil, "busy", fmt.Errorf("%w: %s not acquired within %s", ErrBusy, l.path, timeout)
		}

		wait := l.pollInterval
		if remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			closeFile(file)
			return nil, "canceled", fmt.Errorf("failed to acquire lock %s: %w", l.path, ctx.Err())
		case <-timer.C:
		}
	}
}

// Handle is a held lock. Release is safe to call more than once.
type Handle struct {
	file *os.File
	once sync.Once
	err  error
}

func (h *Handle) Release() error {
	h.once.Do(func() {
		unlockErr := unlock(h.file)
		closeErr := h.file.Close()
		h.err = errors.Join(unlockErr, closeErr)
	})
	return h.err
}

func closeFile(file *os.File) {
	if err := file.Close(); err != nil {
		logrus.
			WithError(err).
			WithField("path", file.Name()).
			Warn("failed to close lock file")
	}
}
