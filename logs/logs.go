// File: logs/logs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide zap logger. Components take a *zap.Logger through their
// options and default to a named child of Logger.

package logs

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar selects the logger flavour; "test" yields a development logger.
const EnvVar = "HIOLOAD_ENV"

var Logger *zap.Logger

func init() {
	var err error
	option := zap.AddCaller()
	if IsTest() {
		Logger, err = zap.NewDevelopment(option)
	} else {
		Logger, err = zap.NewProduction(option)
	}

	if err != nil {
		panic(err)
	}
}

// IsTest reports whether HIOLOAD_ENV=test.
func IsTest() bool {
	return os.Getenv(EnvVar) == "test"
}

// Named returns a child logger for one component.
func Named(component string) *zap.Logger {
	return Logger.Named(component)
}

// SetLevel rebuilds Logger at the given level ("debug", "info", ...).
func SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	if IsTest() {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// Sync flushes Logger, ignoring the EINVAL stderr returns on some platforms.
func Sync() {
	_ = Logger.Sync()
}
