package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions controls how the global logger is built
type LogOptions struct {
	Dir    string // empty disables the file sink
	Level  string // debug, info, warn, error
	Format string // console or json
}

var (
	mu           sync.RWMutex
	globalLogger *zap.SugaredLogger
	fileSink     *lumberjack.Logger
)

// InitLogger initializes the global logger. Output always goes to stdout;
// when a directory is given it is mirrored to a rotated file as well.
func InitLogger(opts LogOptions) error {
	level := parseLevel(opts.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if opts.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level),
	}

	var sink *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		sink = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "siem-console.log"),
			MaxSize:    50, // megabytes
			MaxBackups: 7,
			MaxAge:     14, // days
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(sink), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	defer mu.Unlock()
	if fileSink != nil {
		fileSink.Close()
	}
	globalLogger = logger.Sugar()
	fileSink = sink
	return nil
}

// SetLogger swaps the global logger, mainly for tests
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Package-level logging functions

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Named returns a component logger carrying structured fields
func Named(name string) *zap.SugaredLogger {
	return get().Desugar().WithOptions(zap.AddCallerSkip(-1)).Named(name).Sugar()
}

// Close flushes the logger and closes the file sink
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
	if fileSink != nil {
		fileSink.Close()
		fileSink = nil
	}
}
