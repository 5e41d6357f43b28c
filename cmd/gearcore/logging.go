package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gearcore/internal/core"
)

var _ core.Logger = zapLogger{}

// zapLogger adapts a sugared zap logger to core.Logger. Arguments after the
// message are key/value pairs.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

// With returns a logger that adds the key/value pairs to every entry.
func (l zapLogger) With(args ...any) zapLogger { return zapLogger{s: l.s.With(args...)} }

// Named returns a logger whose entries carry the sub-logger name.
func (l zapLogger) Named(name string) zapLogger { return zapLogger{s: l.s.Named(name)} }

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// newLogger routes entries below error to stdout and error and above to
// stderr, both as console lines. If logPath is non-empty every enabled entry is
// also appended to that file as JSON. The returned cleanup flushes and closes.
func newLogger(stdout, stderr io.Writer, level, logPath string) (zapLogger, func(), error) {
	threshold := parseLevel(level)
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	console := zapcore.NewConsoleEncoder(encCfg)

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= threshold && l < zapcore.ErrorLevel })
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= threshold && l >= zapcore.ErrorLevel })
	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(zapcore.AddSync(stdout)), low),
		zapcore.NewCore(console, zapcore.Lock(zapcore.AddSync(stderr)), high),
	}

	var file *os.File
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zapLogger{}, nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zap.NewAtomicLevelAt(threshold)))
	}

	base := zap.New(zapcore.NewTee(cores...))
	cleanup := func() {
		_ = base.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return zapLogger{s: base.Sugar()}, cleanup, nil
}
