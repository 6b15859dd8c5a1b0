// Package logger wires per-subsystem loggers onto a single rotating
// log file, in the same split the teacher's logger.go uses: a backend
// created once at package init, and a fixed set of subsystem loggers
// pulled from it. Adapted from daglabs-btcd/logger/logger.go for
// simbtc's much smaller subsystem list.
package logger

import (
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"

	"github.com/simbtc/simbtc/internal/logs"
)

// logWriter fans out to stdout and the rotator, once initialized.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	if rotatorInitialized {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

var (
	backendLog = logs.NewBackend([]*logs.BackendWriter{
		logs.NewAllLevelsBackendWriter(logWriter{}),
	})

	// LogRotator rotates the on-disk log file. Nil until InitLogRotator runs.
	LogRotator *rotator.Rotator

	rotatorInitialized bool

	// ChainLog is the chain engine subsystem logger.
	ChainLog = backendLog.Logger("CHN")
	// PoolLog is the mempool / block-producer subsystem logger.
	PoolLog = backendLog.Logger("POOL")
	// MinerLog is the miner subsystem logger.
	MinerLog = backendLog.Logger("MINR")
	// CoreNetLog is the core connection manager subsystem logger.
	CoreNetLog = backendLog.Logger("CNET")
	// EdgeNetLog is the edge connection manager subsystem logger.
	EdgeNetLog = backendLog.Logger("ENET")
	// WalletLog is the HTTP wallet surface subsystem logger.
	WalletLog = backendLog.Logger("WLT")
	// MainLog is used by cmd/core and cmd/edge themselves.
	MainLog = backendLog.Logger("MAIN")
)

// InitLogRotator creates the log rotator writing to logFile, rotating
// at 10 MiB and keeping up to 3 old copies. It must run before any
// logger is used if on-disk logs are desired; until then, writers are
// no-ops so tests never touch the filesystem.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return err
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	LogRotator = r
	rotatorInitialized = true
	return nil
}
