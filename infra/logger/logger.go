// Package logger provides the zerolog-backed implementation of the core
// Logger interface.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/mozocode/On-The-Way-Rebuild/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Options selects where and how a logger writes.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// Format is "json" or "console". Empty falls back to APP_ENV: dev gets
	// the console writer, anything else JSON.
	Format string
	Output io.Writer
}

var defaults Options

// Configure sets the options used by New. It is called once at startup
// from the logging configuration section.
func Configure(o Options) {
	defaults = o
}

// New returns a Logger for the given component.
func New(component string) Logger {
	return NewWithOptions(component, defaults)
}

// NewWithOptions builds a logger tagged with component.
func NewWithOptions(component string, o Options) Logger {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}
	format := strings.ToLower(o.Format)
	if format == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		format = "console"
	}
	if format == "console" {
		out = consoleWriter(out)
	}
	level := zerolog.InfoLevel
	if o.Level != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(o.Level)); err == nil {
			level = l
		}
	}
	z := zerolog.New(out).Level(level).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}
