// Package logging configures the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is a logrus level name. Empty means info.
	Level string
	JSON  bool

	// File, when set, receives the log through a rotating writer.
	File string
	// AlsoStderr keeps writing to stderr when File is set.
	AlsoStderr bool

	// Output overrides stderr.
	Output io.Writer

	// Buffer, when set, receives a copy of every entry.
	Buffer *Buffer
}

// Logger is a configured logrus logger that owns its output file.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid logging level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	log := &Logger{Logger: logrus.New()}
	if opts.File != "" {
		log.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		if opts.AlsoStderr {
			out = io.MultiWriter(log.file, out)
		} else {
			out = log.file
		}
	}

	log.SetOutput(out)
	log.SetLevel(level)
	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if opts.Buffer != nil {
		log.AddHook(opts.Buffer)
	}
	return log, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
