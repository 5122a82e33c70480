package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the run logger.
type Options struct {
	Level   string
	Format  string // "console" or "json"
	Verbose bool
	// Dir, when set, receives a JSON copy of every event in
	// run_<timestamp>.log.
	Dir string
	// Console is where console or JSON output goes. Defaults to stderr.
	Console io.Writer
}

// Logger is a configured zerolog logger plus its log file.
type Logger struct {
	zerolog.Logger
	file *os.File
	path string
}

// New builds a logger. Verbose forces debug level.
func New(opts Options) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(opts.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	l := &Logger{}
	writers := []io.Writer{out}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		name := "run_" + time.Now().Format("20060102_150405") + ".log"
		f, err := os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open run log: %w", err)
		}
		l.file, l.path = f, f.Name()
		writers = append(writers, f)
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return l, nil
}

// Path returns the run log path, empty when no file was opened.
func (l *Logger) Path() string { return l.path }

// Close closes the run log.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
