package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunLog is the per-run log file. Setup installs its logger as the global one.
type RunLog struct {
	*Logger
	file     *os.File
	filePath string
}

// Setup creates <logDir>/framecomp_run_<timestamp>.log and makes it the
// global log destination. Returns nil if logging is disabled (noLog=true).
func Setup(logDir string, verbose, noLog bool) (*RunLog, error) {
	if noLog {
		return nil, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filePath := filepath.Join(logDir, fmt.Sprintf("framecomp_run_%s.log", timestamp))

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", filePath, err)
	}

	level := LevelInfo
	if verbose {
		level = LevelDebug
	}

	l := &RunLog{
		Logger:   New(Config{Level: level, Output: file, Enabled: true}),
		file:     file,
		filePath: filePath,
	}
	SetGlobal(l.Logger)

	l.Info("framecomp starting", "log_file", filePath, "verbose", verbose)
	return l, nil
}

// Close restores the default global logger and closes the log file.
func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	SetGlobal(nil)
	return l.file.Close()
}

// FilePath returns the path to the log file.
func (l *RunLog) FilePath() string {
	if l == nil {
		return ""
	}
	return l.filePath
}
