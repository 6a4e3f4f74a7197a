package util

import (
	"os"
	"path/filepath"
	"strings"
)

// sourceExtensions are the containers accepted when a directory is given as a source.
var sourceExtensions = []string{
	".mkv", ".mp4", ".m4v", ".mov", ".webm",
	".avi", ".wmv", ".flv", ".ogv",
	".ts", ".m2ts", ".mts", ".vob", ".mpg", ".mpeg",
	".y4m", ".ivf", ".264", ".h264", ".265", ".hevc",
}

// HasVideoExtension reports whether name ends in a known video container
// extension (case-insensitive).
func HasVideoExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range sourceExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// IsVideoFile reports whether path is a regular file with a video extension.
func IsVideoFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return HasVideoExtension(path)
}

// EnsureDirectory creates a directory if it doesn't exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// DirectoryExists checks if a directory exists.
func DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
