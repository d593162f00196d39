package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu       sync.Mutex
	instance *zap.Logger
)

// InitLogger builds the process-wide logger at the given level.
// Unknown levels fall back to info.
func InitLogger(level string) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stdout"}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	instance = logger
}

// GetLogger returns the process-wide logger, initializing a default one if
// InitLogger was never called (tests, library use).
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = zap.NewNop()
	}
	return instance
}
