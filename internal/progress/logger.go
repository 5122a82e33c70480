package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrorEntry is one failed file.
type ErrorEntry struct {
	File      string    `yaml:"file"`
	Error     string    `yaml:"error"`
	Timestamp time.Time `yaml:"timestamp"`
}

// ErrorLogger appends per-file failures to a plain text log, one line per
// failure, and keeps them for the run summary.
type ErrorLogger struct {
	mu      sync.Mutex
	logFile string
	root    string
	errors  []ErrorEntry
	file    *os.File
	now     func() time.Time
}

// NewErrorLogger opens logFile for appending. Paths under root are logged
// relative to it. An empty logFile keeps entries in memory only.
func NewErrorLogger(logFile, root string) (*ErrorLogger, error) {
	logger := &ErrorLogger{
		logFile: logFile,
		root:    root,
		now:     time.Now,
	}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("could not open error log: %w", err)
		}
		logger.file = file
	}

	return logger, nil
}

// Log records a failure for filePath.
func (l *ErrorLogger) Log(filePath, errorMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := filePath
	if l.root != "" {
		if rel, err := filepath.Rel(l.root, filePath); err == nil {
			name = filepath.ToSlash(rel)
		}
	}

	entry := ErrorEntry{File: name, Error: errorMsg, Timestamp: l.now()}
	l.errors = append(l.errors, entry)

	if l.file != nil {
		fmt.Fprintf(l.file, "%s | %s | %s\n", entry.Timestamp.Format(time.RFC3339), entry.File, entry.Error)
	}
}

// Entries returns a copy of the logged failures.
func (l *ErrorLogger) Entries() []ErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ErrorEntry(nil), l.errors...)
}

// Summary returns a one-line description for the run summary.
func (l *ErrorLogger) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case len(l.errors) == 0:
		return "No errors"
	case l.logFile == "":
		return fmt.Sprintf("%d errors", len(l.errors))
	}
	return fmt.Sprintf("%d errors logged to %s", len(l.errors), l.logFile)
}

// ErrorCount returns the number of logged errors.
func (l *ErrorLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// Path returns the log file path, empty for an in-memory logger.
func (l *ErrorLogger) Path() string { return l.logFile }

// Close closes the log file.
func (l *ErrorLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
