package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
	lockRetryDelay = 200 * time.Millisecond
)

// ErrLockTimeout is returned when another writer holds the database for
// longer than the caller is willing to wait.
var ErrLockTimeout = errors.New("timed out waiting for the database lock")

// DBLock is a file lock held while a command writes to the portal database.
type DBLock struct {
	lock *flock.Flock
	path string
}

// NewDBLock creates a lock next to the given database path.
func NewDBLock(dbPath string) (*DBLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &DBLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the lock. While another writer holds it, Lock polls until
// ctx is done and then returns ErrLockTimeout.
func (l *DBLock) Lock(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}

	Log.Warn("Another ubiportal process is writing to the database, waiting for it to finish...")
	locked, err = l.lock.TryLockContext(ctx, lockRetryDelay)
	switch {
	case locked:
		return nil
	case err == nil || ctx.Err() != nil:
		return fmt.Errorf("%w (%s)", ErrLockTimeout, l.path)
	default:
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
}

// Locked reports whether this process holds the lock.
func (l *DBLock) Locked() bool { return l.lock.Locked() }

// Unlock releases the lock. The lock file is left in place: removing it would
// let a later writer lock a fresh file while a waiter holds the old one.
func (l *DBLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// WithDBLock runs fn while holding the lock for dbPath.
func WithDBLock(ctx context.Context, dbPath string, fn func() error) error {
	l, err := NewDBLock(dbPath)
	if err != nil {
		return err
	}
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := l.Unlock(); err != nil {
			Log.Warn(err)
		}
	}()
	return fn()
}

// GetAbsDBPath resolves the database path. An empty path means
// ~/.config/ubiportal/ubiportal.sqlite.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "ubiportal", "ubiportal.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
