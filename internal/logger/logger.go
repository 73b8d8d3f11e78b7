// Package logger provides JSON structured logging using zerolog.
//
// The entry point builds one Logger with New and passes it to every component;
// components derive their own child logger with WithComponent.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log output
type Config struct {
	Level      string `json:"level" yaml:"level"`
	Debug      bool   `json:"debug" yaml:"debug"`
	Output     string `json:"output" yaml:"output"`
	TimeFormat string `json:"time_format" yaml:"time_format"`
}

// DefaultConfig returns info-level JSON logging to stdout
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: "stdout",
	}
}

// Logger is the logging collaborator handed to every component
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New builds a logger from config
func New(cfg Config) (Logger, error) {
	return NewWithWriter(cfg, nil)
}

// NewWithWriter builds a logger writing to w; a nil w selects the configured output
func NewWithWriter(cfg Config, w io.Writer) (Logger, error) {
	if w == nil {
		switch strings.ToLower(cfg.Output) {
		case "", "stdout":
			w = os.Stdout
		case "stderr":
			w = os.Stderr
		case "console":
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		default:
			return nil, fmt.Errorf("unknown log output %q", cfg.Output)
		}
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}, nil
}

func (l *zeroLogger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *zeroLogger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *zeroLogger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *zeroLogger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *zeroLogger) Error() *zerolog.Event { return l.zl.Error() }
func (l *zeroLogger) With() zerolog.Context { return l.zl.With() }

func (l *zeroLogger) WithComponent(component string) Logger {
	return &zeroLogger{zl: l.zl.With().Str("component", component).Logger()}
}

func (l *zeroLogger) SetLevel(level zerolog.Level) {
	l.zl = l.zl.Level(level)
}

func (l *zeroLogger) SetDebug(debug bool) {
	if debug {
		l.SetLevel(zerolog.DebugLevel)
		return
	}
	l.SetLevel(zerolog.InfoLevel)
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return &zeroLogger{zl: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}
