// Package lock serializes concurrent toolup runs against one install root.
package lock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/logging"
)

const (
	DefaultTimeout = 30 * time.Second
	retryDelay     = 100 * time.Millisecond
)

// Path is the lock file guarding root.
func Path(root string) string {
	return filepath.Clean(root) + ".lock"
}

// Lock is a held install lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the exclusive lock for root, waiting up to timeout. It fails
// with a LockError rather than blocking forever. The lock file's directory is
// created through fs; the lock itself is a host flock.
func Acquire(ctx context.Context, fs afero.Fs, root string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	path := Path(root)
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, toolerrors.Wrapf(err, toolerrors.ErrLock, "create lock directory for %s", path)
	}

	fl := flock.New(path)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := logging.Get("lock")
	logger.Debug().Str("path", path).Dur("timeout", timeout).Msg("Acquiring install lock")
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, toolerrors.Newf(toolerrors.ErrLock,
				"another toolup run holds %s (waited %s)", path, timeout).WithDetail("path", path)
		}
		return nil, toolerrors.Wrapf(err, toolerrors.ErrLock, "lock %s", path)
	}
	if !locked {
		return nil, toolerrors.Newf(toolerrors.ErrLock, "could not lock %s", path)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. The lock file itself is left in place; removing it
// would race with a waiter that already opened it.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.fl.Path(), err)
	}
	return nil
}
