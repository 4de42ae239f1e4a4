// Package logging provides the leveled logger shared by all services.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level uint32

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = []string{"none", "error", "warn", "info", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// ParseLevel accepts the names printed by Level.String.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unrecognized log level: %q (valid options: %v)", s, levelNames)
}

// FileConfig enables a rotated log file in place of stderr.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger is safe for concurrent use. A nil *Logger discards everything.
type Logger struct {
	level  atomic.Uint32
	out    *log.Logger
	closer io.Closer
}

func New(w io.Writer, level Level) *Logger {
	l := &Logger{out: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
	l.level.Store(uint32(level))
	return l
}

// NewFile writes to a lumberjack-rotated file, or stderr when cfg.Path is empty.
func NewFile(cfg FileConfig, level Level) *Logger {
	if cfg.Path == "" {
		return New(os.Stderr, level)
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	l := New(lj, level)
	l.closer = lj
	return l
}

func (l *Logger) SetLevel(level Level) {
	if l != nil {
		l.level.Store(uint32(level))
	}
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && l.level.Load() >= uint32(level)
}

func (l *Logger) logf(level Level, tag, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	_ = l.out.Output(3, tag+" "+fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, "[ERR]", format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(LevelWarn, "[WRN]", format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(LevelInfo, "[INF]", format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, "[DBG]", format, args...) }

// Close releases the rotated file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
