// Package logging configures the loggo module loggers used across hoist.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"

	"github.com/adamancini/hoist/internal/types"
)

// Options configures the root logger.
type Options struct {
	Level   types.LogLevel
	File    string    // rotate into this file instead of Output
	Output  io.Writer // defaults to os.Stderr
	Verbose bool      // forces debug
	Quiet   bool      // forces error
}

// Setup installs the default loggo writer and sets the root level.
// The returned closer releases the log file, if any.
func Setup(opts Options) (io.Closer, error) {
	level := opts.Level.Default()
	switch {
	case opts.Verbose:
		level = types.LogLevelDebug
	case opts.Quiet:
		level = types.LogLevelError
	}

	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			Compress:   true,
		}
		w = rotating
		closer = rotating
	}

	// The default writer is absent after loggo.ResetWriters.
	_, _ = loggo.RemoveWriter(loggo.DefaultWriterName)
	if err := loggo.RegisterWriter(loggo.DefaultWriterName, loggo.NewSimpleWriter(w, loggo.DefaultFormatter)); err != nil {
		return nil, fmt.Errorf("failed to register log writer: %w", err)
	}
	if err := loggo.ConfigureLoggers(LoggerConfig(level)); err != nil {
		return nil, fmt.Errorf("failed to configure loggers: %w", err)
	}

	return closer, nil
}

// LoggerConfig returns the loggo configuration string for a level.
func LoggerConfig(level types.LogLevel) string {
	return fmt.Sprintf("<root>=%s", loggoLevel(level))
}

func loggoLevel(level types.LogLevel) loggo.Level {
	switch level {
	case types.LogLevelTrace:
		return loggo.TRACE
	case types.LogLevelDebug:
		return loggo.DEBUG
	case types.LogLevelWarning:
		return loggo.WARNING
	case types.LogLevelError:
		return loggo.ERROR
	default:
		return loggo.INFO
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
