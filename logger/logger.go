package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar       *zap.SugaredLogger
	initialized bool
)

// Init builds the process logger. level is DEBUG, INFO, WARN or ERROR;
// logPath, when non-empty, duplicates output into a file (the directory is
// created if missing). Safe to call again with new settings.
func Init(level, logPath string) error {
	zapLevel := zapcore.InfoLevel
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		zapLevel = zapcore.DebugLevel
	case "", "INFO":
		zapLevel = zapcore.InfoLevel
	case "WARN", "WARNING":
		zapLevel = zapcore.WarnLevel
	case "ERROR":
		zapLevel = zapcore.ErrorLevel
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
			fmt.Fprintf(os.Stderr, "logger: cannot create log directory for %s: %v; file output disabled\n", logPath, err)
		} else {
			cfg.OutputPaths = append(cfg.OutputPaths, logPath)
		}
	}

	raw, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	if sugar != nil {
		_ = sugar.Sync()
	}
	sugar = raw.Sugar()
	initialized = true
	return nil
}

// ensure lazily provides a logger so packages can log before Init runs
// (notably in tests).
func ensure() *zap.SugaredLogger {
	if !initialized {
		raw, _ := zap.NewProduction()
		sugar = raw.Sugar()
		initialized = true
	}
	return sugar
}

func Debug(format string, v ...interface{}) { ensure().Debugf(format, v...) }
func Info(format string, v ...interface{})  { ensure().Infof(format, v...) }
func Warn(format string, v ...interface{})  { ensure().Warnf(format, v...) }
func Error(format string, v ...interface{}) { ensure().Errorf(format, v...) }
func Fatal(format string, v ...interface{}) { ensure().Fatalf(format, v...) }

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
