//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package wal

import (
	"fmt"
	"os"
	"path/filepath"
)

// dirLock only marks the directory on platforms without flock.
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
	return &dirLock{file: file, path: lockPath}, nil
}

func (l *dirLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
