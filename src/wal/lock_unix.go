//go:build linux || darwin || freebsd || netbsd || openbsd

package wal

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// dirLock is an exclusive lock on a WAL directory.
// It prevents two processes from appending to the same log.
type dirLock struct {
	file *os.File
	path string
}

func acquireDirLock(dir, name string) (*dirLock, error) {
	lockPath := filepath.Join(dir, name+".lock")

	file, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("WAL %s in %s is locked by another process", name, dir)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return &dirLock{file: file, path: lockPath}, nil
}

func (l *dirLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}

	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		l.file = nil
		return fmt.Errorf("unlock: %w", err)
	}
	if err := l.file.Close(); err != nil {
		l.file = nil
		return fmt.Errorf("close lock file: %w", err)
	}
	l.file = nil
	return nil
}
