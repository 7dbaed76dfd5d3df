// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"

	"dedup/config"
)

// New returns a logger writing to stderr.
func New(cfg config.LoggingConfig) *log.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter returns a logger writing to w, as coloured console text or
// one JSON object per line.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) *log.Logger {
	logger := &log.Logger{
		Level:      log.ParseLevel(cfg.Level),
		TimeFormat: "15:04:05",
	}
	if cfg.Format == "json" {
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: w}
		return logger
	}
	logger.Writer = &log.ConsoleWriter{
		Writer:         w,
		ColorOutput:    isTerminal(w),
		QuoteString:    true,
		EndWithMessage: true,
	}
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && log.IsTerminal(f.Fd())
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}
