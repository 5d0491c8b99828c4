// File: internal/logutil/logutil.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package logutil builds the process-wide zap logger from LogConfig.
// Console output goes to stderr; a configured Filename switches to a
// size-rotated file through lumberjack.

package logutil

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig is the [log] section of the configuration file.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // console or json
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"` // megabytes
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`

	StacktraceLevel string `toml:"stacktrace-level"`
}

// DefaultLogConfig logs info and above to the console.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           zapcore.InfoLevel.String(),
		Format:          "console",
		MaxSize:         512,
		StacktraceLevel: zapcore.PanicLevel.String(),
	}
}

var global atomic.Value // *zap.Logger

func init() {
	global.Store(zap.NewNop())
}

// GetGlobalLogger returns the logger installed by SetupLogger, or a no-op
// logger before setup.
func GetGlobalLogger() *zap.Logger {
	return global.Load().(*zap.Logger)
}

// ReplaceGlobalLogger installs l and returns the previous logger.
func ReplaceGlobalLogger(l *zap.Logger) *zap.Logger {
	return global.Swap(l).(*zap.Logger)
}

// SetupLogger builds a logger from cfg and installs it globally.
func SetupLogger(cfg LogConfig) (*zap.Logger, error) {
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	ReplaceGlobalLogger(l)
	return l, nil
}

// Build returns a logger for cfg without installing it.
func (cfg LogConfig) Build() (*zap.Logger, error) {
	level, err := cfg.getLevel()
	if err != nil {
		return nil, err
	}
	enc, err := cfg.getEncoder()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.getOptions()
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(enc, cfg.getSyncer(), level)
	return zap.New(core, opts...), nil
}

func parseLevel(s string, def zapcore.Level) (zapcore.Level, error) {
	if s == "" {
		return def, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return def, fmt.Errorf("logutil: invalid level %q: %w", s, err)
	}
	return l, nil
}

func (cfg LogConfig) getLevel() (zap.AtomicLevel, error) {
	l, err := parseLevel(cfg.Level, zapcore.InfoLevel)
	if err != nil {
		return zap.AtomicLevel{}, err
	}
	return zap.NewAtomicLevelAt(l), nil
}

func (cfg LogConfig) getOptions() ([]zap.Option, error) {
	st, err := parseLevel(cfg.StacktraceLevel, zapcore.PanicLevel)
	if err != nil {
		return nil, err
	}
	return []zap.Option{zap.AddStacktrace(st), zap.AddCaller()}, nil
}

func (cfg LogConfig) getSyncer() zapcore.WriteSyncer {
	if cfg.Filename == "" {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxDays,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	})
}

func (cfg LogConfig) getEncoder() (zapcore.Encoder, error) {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	switch cfg.Format {
	case "", "console":
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(ec), nil
	case "json":
		return zapcore.NewJSONEncoder(ec), nil
	default:
		return nil, fmt.Errorf("logutil: unsupported log format: %s", cfg.Format)
	}
}
