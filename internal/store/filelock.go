package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/kiki/internal/config"
	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/gofrs/flock"
)

// FileLock guards a workspace against a second process writing the same slots.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	mu         sync.RWMutex
}

type FileLockConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func DefaultFileLockConfig() *FileLockConfig {
	lockTimeout, _ := config.DurationOrDefault("", config.DefaultStoreLockTimeout)
	lockRetry, _ := config.DurationOrDefault("", config.DefaultStoreLockRetry)

	return &FileLockConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: config.DefaultStoreLockMaxRetry,
	}
}

func NewFileLock(basePath string, cfg *FileLockConfig) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}

	lockPath := LockPath(basePath)
	fl := &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LockTimeout)
	defer cancel()

	if err := fl.acquireWithRetry(ctx, cfg); err != nil {
		return nil, err
	}

	fl.acquiredAt = time.Now()
	slog.Debug("File lock acquired", "path", lockPath)

	return fl, nil
}

func (fl *FileLock) acquireWithRetry(ctx context.Context, cfg *FileLockConfig) error {
	for i := 0; i < cfg.LockMaxRetry; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock acquisition cancelled: %w: %w", kerrors.ErrTransient, ctx.Err())
		default:
		}

		locked, err := fl.fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to attempt lock: %w", err)
		}
		if locked {
			return nil
		}

		if i < cfg.LockMaxRetry-1 {
			time.Sleep(cfg.LockRetry)
		}
	}

	return kerrors.Transient(fmt.Sprintf("workspace %s is locked by another instance (timeout after %v)",
		fl.lockPath, cfg.LockTimeout))
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		return
	}

	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "path", fl.lockPath, "error", err)
	} else {
		slog.Debug("File lock released",
			"path", fl.lockPath,
			"held_duration_ms", time.Since(fl.acquiredAt).Milliseconds(),
		)
	}

	fl.fileLock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fileLock != nil
}
