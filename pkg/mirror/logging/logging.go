// Package logging provides component loggers for the mirror tool.
// Logs go to a file under the XDG state directory; console output to
// stderr is optional so progress lines stay readable.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("pipeline")
//	logger.Info("run started", "src", src)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jamesainslie/mirror/pkg/mirror/config"
)

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a charmbracelet log level.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses config.DefaultLogPath().
	// "discard" disables file output entirely (used in tests).
	Path string

	// Console mirrors log output to stderr when true.
	Console bool
}

// state holds the global logging state.
type state struct {
	mu          sync.Mutex
	initialized bool
	file        *os.File
	level       log.Level
	console     bool
	loggers     map[string]*log.Logger
}

var globalState = &state{
	loggers: make(map[string]*log.Logger),
}

// Init initializes the logging system. Before Init is called all
// loggers write to io.Discard.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	if globalState.file != nil {
		_ = globalState.file.Close()
		globalState.file = nil
	}

	path := cfg.Path
	if path == "" {
		if err := config.EnsureStateDir(); err != nil {
			return err
		}
		path = config.DefaultLogPath()
	}
	if path != "discard" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		globalState.file = f
	}

	globalState.level = level
	globalState.console = cfg.Console
	globalState.initialized = true
	globalState.loggers = make(map[string]*log.Logger)

	return nil
}

// Get returns a logger for the given component.
func Get(component string) *log.Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}

	logger := createLogger(component)
	globalState.loggers[component] = logger
	return logger
}

// createLogger creates a new logger for the given component.
// Must be called with globalState.mu held.
func createLogger(component string) *log.Logger {
	if !globalState.initialized {
		return log.NewWithOptions(io.Discard, log.Options{Prefix: component})
	}

	var w io.Writer = io.Discard
	switch {
	case globalState.file != nil && globalState.console:
		w = io.MultiWriter(globalState.file, os.Stderr)
	case globalState.file != nil:
		w = globalState.file
	case globalState.console:
		w = os.Stderr
	}

	return log.NewWithOptions(w, log.Options{
		Level:           globalState.level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          component,
	})
}

// Close flushes and closes the log file.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	if globalState.file != nil {
		if err := globalState.file.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		globalState.file = nil
	}

	globalState.initialized = false
	globalState.loggers = make(map[string]*log.Logger)

	return nil
}
