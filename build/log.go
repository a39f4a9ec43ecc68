// Package build provides the shared logging backend used by every
// subsystem of btcswap: a single btclog.Backend writing to a rotating
// log file and to stdout, with one btclog.Logger carved out per
// subsystem by NewSubLogger.
package build

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// LogWriter is an io.Writer that always writes to stdout and, once a log
// rotator has been attached via InitLogRotator, to the rotator as well.
// This lets subsystem loggers be created before the rotator exists (at
// package init time), and start writing to the file the moment the daemon
// attaches it.
type LogWriter struct {
	Rotator *rotator.Rotator
}

// Write implements io.Writer.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if w.Rotator != nil {
		w.Rotator.Write(b)
	}
	return len(b), nil
}

// NewSubLogger carves a subsystem logger with the given tag out of the
// shared backend. Tags are four uppercase characters by convention
// ("SWAP", "HRPC", "HTLC", "PSTR").
func NewSubLogger(tag string, backend *btclog.Backend) btclog.Logger {
	logger := backend.Logger(tag)
	logger.SetLevel(btclog.LevelInfo)
	return logger
}

// InitLogRotator initializes the log rotator to write logs to the
// specified file and rotate when it reaches a fixed size of 10 MiB,
// keeping at most maxRolls rotated files.
func InitLogRotator(w *LogWriter, logFile string, maxRolls int) error {
	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return err
	}
	w.Rotator = r
	return nil
}

var _ io.Writer = (*LogWriter)(nil)
