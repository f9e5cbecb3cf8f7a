package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Setup configures the process-wide logger. Level is one of trace, debug,
// info, warn or error; pretty switches to human-readable console output.
func Setup(level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	out := zerolog.New(os.Stderr)
	if pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	mu.Lock()
	logger = out.Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
	return nil
}

// L returns the process-wide logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Component returns a logger tagged with a component name, so every state
// transition it logs can be traced back to one subsystem.
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}
