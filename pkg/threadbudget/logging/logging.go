// Package logging provides component loggers for threadbudget built on
// charmbracelet/log. Logs go to a rotating file and, optionally, to stderr.
//
// User-facing diagnostics are not logs: they are written to stdout by the
// output package. Loggers here record what the configurator did and why.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("configurator")
//	logger.Info("applied thread budget", "threads", 3)
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

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to their log levels.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level.
	// Empty disables console output.
	ConsoleLevel string

	// Console is the console destination. Nil means os.Stderr.
	Console io.Writer
}

// Logger is a component logger. Loggers obtained before Init write nowhere
// and are rebuilt in place when Init runs, so package-level loggers created
// at import time pick up the configuration.
type Logger struct {
	component string

	mu      sync.RWMutex
	file    *log.Logger
	console *log.Logger
	fields  []interface{}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// With returns a logger carrying additional key/value context.
// The returned logger is detached: it keeps the sinks current at call time.
func (l *Logger) With(args ...interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	child := &Logger{
		component: l.component,
		file:      l.file.With(args...),
		fields:    append(append([]interface{}(nil), l.fields...), args...),
	}
	if l.console != nil {
		child.console = l.console.With(args...)
	}
	return child
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	l.mu.RLock()
	file, console := l.file, l.console
	l.mu.RUnlock()

	logTo(file, level, msg, args...)
	if console != nil {
		logTo(console, level, msg, args...)
	}
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// state holds the global logging state.
type state struct {
	mu          sync.Mutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	loggers     map[string]*Logger

	consoleEnabled bool
	consoleLevel   Level
	console        io.Writer
}

var globalState = &state{
	loggers:    make(map[string]*Logger),
	components: make(map[string]Level),
}

// Init configures the logging system. It may be called again to reconfigure;
// the previous log file is closed first.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	var consoleLevel Level
	if cfg.ConsoleLevel != "" {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}

	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if globalState.writer != nil {
		if err := globalState.writer.Close(); err != nil {
			_ = writer.Close()
			return fmt.Errorf("closing existing writer: %w", err)
		}
	}

	globalState.writer = writer
	globalState.level = level
	globalState.components = components
	globalState.consoleEnabled = cfg.ConsoleLevel != ""
	globalState.consoleLevel = consoleLevel
	globalState.console = cfg.Console
	if globalState.console == nil {
		globalState.console = os.Stderr
	}
	globalState.initialized = true

	for _, logger := range globalState.loggers {
		globalState.configure(logger)
	}

	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}

	logger := &Logger{component: component}
	globalState.configure(logger)
	globalState.loggers[component] = logger
	return logger
}

// configure (re)builds the sinks of logger. Must be called with s.mu held.
func (s *state) configure(logger *Logger) {
	level := s.level
	if compLevel, ok := s.components[logger.component]; ok {
		level = compLevel
	}

	var file, console *log.Logger
	if !s.initialized {
		file = log.NewWithOptions(io.Discard, log.Options{
			Level:  level.charm(),
			Prefix: logger.component,
		})
	} else {
		file = log.NewWithOptions(s.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          logger.component,
		})
		if s.consoleEnabled {
			console = log.NewWithOptions(s.console, log.Options{
				Level:           s.consoleLevel.charm(),
				ReportTimestamp: true,
				TimeFormat:      "15:04:05",
				Prefix:          logger.component,
			})
		}
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	logger.file = file
	logger.console = console
	if len(logger.fields) > 0 {
		logger.file = logger.file.With(logger.fields...)
		if logger.console != nil {
			logger.console = logger.console.With(logger.fields...)
		}
	}
}

// Close flushes and closes the log file. Loggers keep working afterwards
// but discard their output until the next Init.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	globalState.initialized = false
	globalState.consoleEnabled = false
	for _, logger := range globalState.loggers {
		globalState.configure(logger)
	}

	if globalState.writer != nil {
		err := globalState.writer.Close()
		globalState.writer = nil
		if err != nil {
			return fmt.Errorf("closing log writer: %w", err)
		}
	}

	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/threadbudget/threadbudget.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "threadbudget", "threadbudget.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
