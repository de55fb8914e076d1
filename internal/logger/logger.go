// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logger constructs the structured loggers used by the
// commands.
package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/internal/errors"
)

// Level names accepted by ParseLevel.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ParseLevel returns the zerolog level for name.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(name) {
	case LevelDebug:
		return zerolog.DebugLevel, nil
	case LevelInfo, "":
		return zerolog.InfoLevel, nil
	case LevelWarn, "warning":
		return zerolog.WarnLevel, nil
	case LevelError:
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, errors.NewFactory().WithData(errors.ErrInvalidConfig, "log level "+name)
}

// New returns a console logger writing to w at the given level.
// Timestamps are omitted when service is true since the service
// manager's journal already carries them.
func New(w io.Writer, level zerolog.Level, service bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    service,
		TimeFormat: time.RFC3339,
	}
	if service {
		output.TimeFormat = ""
		output.FormatTimestamp = func(any) string { return "" }
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// IsService reports whether the process appears to be running under
// a service manager.
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}
	return syscall.Getpgrp() == syscall.Getpid()
}

// Component returns l with a component field.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
