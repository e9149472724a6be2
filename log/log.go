// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log is a small structured-logging facade used throughout
// katsuba. It mirrors the call shape of the lineage's own internal logger
// (NewStdLogger/NewHelper/NewFilter/FilterLevel, a Helper with leveled
// *f methods) but is backed by go.uber.org/zap rather than a hand-rolled
// writer.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a log severity, ordered from most to least verbose.
type Level int8

// Severity levels, matching zapcore's ordering.
const (
	LevelDebug Level = Level(zapcore.DebugLevel)
	LevelInfo  Level = Level(zapcore.InfoLevel)
	LevelWarn  Level = Level(zapcore.WarnLevel)
	LevelError Level = Level(zapcore.ErrorLevel)
)

// Logger is the minimal leveled-logging interface Helper adapts to. A
// *zap.SugaredLogger satisfies it via the adapter returned by NewStdLogger.
type Logger interface {
	Log(level Level, msg string)
}

type stdLogger struct {
	sugar *zap.SugaredLogger
}

// NewStdLogger returns a Logger that writes JSON-free, human-readable lines
// to w (os.Stdout if w is nil), the same default destination as the
// lineage's own NewStdLogger(os.Stdout).
func NewStdLogger(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	logger := zap.New(core)
	return &stdLogger{sugar: logger.Sugar()}
}

func (l *stdLogger) Log(level Level, msg string) {
	switch level {
	case LevelDebug:
		l.sugar.Debug(msg)
	case LevelInfo:
		l.sugar.Info(msg)
	case LevelWarn:
		l.sugar.Warn(msg)
	default:
		l.sugar.Error(msg)
	}
}

// FilterOption configures NewFilter.
type FilterOption func(*filterLogger)

// FilterLevel sets the minimum level that passes through a filtered
// Logger; messages below it are dropped.
func FilterLevel(level Level) FilterOption {
	return func(f *filterLogger) { f.min = level }
}

type filterLogger struct {
	next Logger
	min  Level
}

func (f *filterLogger) Log(level Level, msg string) {
	if level < f.min {
		return
	}
	f.next.Log(level, msg)
}

// NewFilter wraps next with a minimum-severity filter.
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filterLogger{next: next, min: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Helper adds printf-style convenience methods over a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps a Logger with Debugf/Infof/Warnf/Errorf methods.
func NewHelper(logger Logger) *Helper {
	if logger == nil {
		logger = NewFilter(NewStdLogger(nil), FilterLevel(LevelError))
	}
	return &Helper{logger: logger}
}

func (h *Helper) logf(level Level, format string, args ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	h.logger.Log(level, fmt.Sprintf(format, args...))
}

// Debugf logs at debug severity.
func (h *Helper) Debugf(format string, args ...interface{}) { h.logf(LevelDebug, format, args...) }

// Infof logs at info severity.
func (h *Helper) Infof(format string, args ...interface{}) { h.logf(LevelInfo, format, args...) }

// Warnf logs at warn severity.
func (h *Helper) Warnf(format string, args ...interface{}) { h.logf(LevelWarn, format, args...) }

// Errorf logs at error severity.
func (h *Helper) Errorf(format string, args ...interface{}) { h.logf(LevelError, format, args...) }

// Warn logs a single message at warn severity.
func (h *Helper) Warn(args ...interface{}) { h.logf(LevelWarn, fmt.Sprint(args...)) }
