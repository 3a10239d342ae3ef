// Package logging builds the component loggers used by long-running
// commands. When a log file is configured every component writes to the
// same rotating file; otherwise they write to stderr.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pinsync/pinsync/internal/config"
)

// Sink is a shared log destination.
type Sink struct {
	w      io.Writer
	closer io.Closer
}

// Open returns a Sink for cfg. The caller MUST call Close().
func Open(cfg config.LogConfig) (*Sink, error) {
	if cfg.File == "" {
		return &Sink{w: os.Stderr}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return &Sink{w: lj, closer: lj}, nil
}

// NewSink wraps an existing writer.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Logger returns a logger with a bracketed component prefix, e.g.
// Logger("sync") prefixes lines with "[sync] ".
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Writer exposes the destination for libraries that take an io.Writer.
func (s *Sink) Writer() io.Writer {
	return s.w
}

// Close flushes and closes the log file, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
