// Package logging configures the structured loggers used across the
// receiver: one per subsystem, sharing a level and output writer set from
// config/CLI flags.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Subsystem names used as the "subsystem" field on every log line, one
// per long-lived goroutine group in the receiver.
const (
	Pipeline  = "pipeline"
	Rds       = "rds"
	Fmgraph   = "fmgraph"
	Device    = "device"
	Cli       = "cli"
)

var root = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// SetLevel adjusts the level of every subsystem logger at once, driven by
// config.Config.LogLevel or the CLI's -l/--log-level flag.
func SetLevel(level log.Level) { root.SetLevel(level) }

// SetOutput redirects all subsystem loggers to w.
func SetOutput(w io.Writer) { root.SetOutput(w) }

// For returns the logger for one subsystem, tagged with a "subsystem"
// field so log lines can be filtered downstream.
func For(subsystem string) *log.Logger {
	return root.With("subsystem", subsystem)
}

// ParseLevel wraps log.ParseLevel for config/flag parsing, defaulting to
// log.InfoLevel on an empty string.
func ParseLevel(s string) (log.Level, error) {
	if s == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(s)
}
