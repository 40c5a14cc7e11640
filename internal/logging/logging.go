// Package logging provides the shared zap bootstrap for acemem.
// Libraries take a *zap.Logger and default to a nop logger; only the CLI
// calls Init, so tests and embedders stay quiet unless they opt in.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init builds the process logger. With debug=true it uses the development
// encoder at debug level, otherwise the production encoder at info level.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	base = logger
	mu.Unlock()
	return nil
}

// L returns the process logger (nop until Init is called).
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named returns a child logger for a subsystem, e.g. "memory" or "reflection".
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered log entries. Safe to call on the nop logger.
func Sync() {
	_ = L().Sync()
}
