package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempDir is a directory owned by one run and removed by Cleanup.
type TempDir struct {
	path string
}

// CreateTempDir creates <baseDir>/<prefix>_<random>. baseDir is created if missing.
func CreateTempDir(baseDir, prefix string) (*TempDir, error) {
	if err := EnsureDirectory(baseDir); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", baseDir, err)
	}
	path, err := os.MkdirTemp(baseDir, prefix+"_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir in %s: %w", baseDir, err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the directory path.
func (d *TempDir) Path() string {
	return d.path
}

// Cleanup removes the directory and everything in it.
func (d *TempDir) Cleanup() error {
	if d == nil || d.path == "" {
		return nil
	}
	return os.RemoveAll(d.path)
}

// EnsureDirectoryWritable checks that path is an existing directory that accepts new files.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	probe, err := os.CreateTemp(path, ".write_test_*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", path, err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

// CleanupStaleTempFiles removes entries in dir named <prefix>_* older than maxAge.
// A missing dir is not an error.
func CleanupStaleTempFiles(dir, prefix string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix+"_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
