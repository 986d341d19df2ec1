// Package log provides the process-wide logger. The printf-style API keeps call sites terse;
// the sink is a zap logger so output is structured and can be rotated on disk.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

var (
	mu      sync.Mutex
	level   = LevelInfo
	sugared = newSugared(zapcore.AddSync(os.Stderr))
)

func newSugared(sink zapcore.WriteSyncer) *zap.SugaredLogger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), sink, zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

// SetLevel adjusts the process log level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutputFile redirects log output to filename with size-based rotation. An empty filename
// restores logging to stderr.
func SetOutputFile(filename string) {
	mu.Lock()
	defer mu.Unlock()
	if filename == "" {
		sugared = newSugared(zapcore.AddSync(os.Stderr))
		return
	}
	sugared = newSugared(zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
	}))
}

func logAt(l Level, format string, a ...interface{}) {
	mu.Lock()
	enabled := l <= level
	logger := sugared
	mu.Unlock()
	if !enabled {
		return
	}
	switch l {
	case LevelDebug:
		logger.Debugf(format, a...)
	case LevelInfo:
		logger.Infof(format, a...)
	case LevelWarning:
		logger.Warnf(format, a...)
	case LevelError:
		logger.Errorf(format, a...)
	}
}

func Debug(format string, a ...interface{}) {
	logAt(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	logAt(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	logAt(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	logAt(LevelError, format, a...)
}
