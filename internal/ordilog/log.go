// Copyright (c) 2023 UTXOchat developers
// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ordilog wires up the shared btclog backend used by every
// subsystem package (blockindex, inscription, indexer, store, rpcclient,
// callback). Each subsystem keeps its own log.go with a package-level
// `log btclog.Logger` set via UseLogger, following the standard
// btcsuite subsystem-logger convention.
package ordilog

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// Backend is the shared log backend every subsystem logger is derived from.
var Backend = btclog.NewBackend(logWriter{})

// LogRotator rotates the on-disk log file. InitLogRotator must be called
// before the first log line is written if file logging is wanted; until
// then, log output only goes to stdout.
var LogRotator *rotator.Rotator

// logWriter implements io.Writer and writes to both stdout and the log
// rotator, if one is configured.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if LogRotator != nil {
		LogRotator.Write(p)
	}
	return len(p), nil
}

// InitLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before
// the package-level log rotator variables are used.
func InitLogRotator(logFile string) error {
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	LogRotator = r
	return nil
}

// SetLevel parses level (falling back to info) and applies it to a new
// logger for subsystem taken from Backend. Backend returns a separate
// logger on every call, so loggers obtained earlier keep their own level.
func SetLevel(subsystem string, level string) {
	l := Backend.Logger(subsystem)
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	l.SetLevel(lvl)
}
