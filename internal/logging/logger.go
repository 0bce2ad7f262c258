// Package logging provides zerolog-backed logging for the go-xps project
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger *zerolog.Logger
	mu            sync.RWMutex
)

// Config holds logging configuration
type Config struct {
	Level  zerolog.Level
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration.
// Setting XPS_DEBUG=1 in the environment enables debug-level logging.
func DefaultConfig() *Config {
	level := zerolog.InfoLevel
	if os.Getenv("XPS_DEBUG") == "1" {
		level = zerolog.DebugLevel
	}
	return &Config{
		Level:  level,
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *zerolog.Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	cw := zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	logger := zerolog.New(cw).Level(config.Level).With().Timestamp().Logger()
	return &logger
}

// Default returns the default logger, creating it if necessary
func Default() *zerolog.Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// Nop returns a logger that discards everything. Useful as a fallback when
// a component is constructed without a logger.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
