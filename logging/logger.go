// Package logging provides the structured logger used by tflitebridge.
//
// Library packages accept a *zap.Logger and default to zap.NewNop(). The CLI
// builds a Logger here, which tees console output (stderr, so stdout stays
// clean for command results) and a rotating JSON log file.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the application's output setup.
//
// Example:
//
//	logger, err := NewLogger(true, "tflitebridge.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("interpreter created", zap.Int("inputs", 1))
type Logger struct {
	zap           *zap.Logger
	sugar         *zap.SugaredLogger
	level         zap.AtomicLevel
	isDevelopment bool
	logFilePath   string
}

// Config controls logger construction. Zero values take defaults.
type Config struct {
	// Level is the minimum enabled level
	Level zapcore.Level

	// Development switches the console to colored, human-readable output
	Development bool

	// FilePath is the JSON log file. Empty disables file output.
	FilePath string

	// File configures rotation of FilePath
	File FileWriterConfig

	// Console receives console output. Default: os.Stderr
	Console io.Writer
}

// NewLogger creates a Logger for the given environment. Development mode logs
// at debug level with colored console output; production logs at info level
// with JSON everywhere.
func NewLogger(isDevelopment bool, logFilePath string) (*Logger, error) {
	level := zapcore.InfoLevel
	if isDevelopment {
		level = zapcore.DebugLevel
	}
	return NewLoggerWithConfig(Config{
		Level:       level,
		Development: isDevelopment,
		FilePath:    logFilePath,
		File:        DefaultFileWriterConfig(),
	})
}

// NewLoggerWithConfig creates a Logger from an explicit Config.
func NewLoggerWithConfig(cfg Config) (*Logger, error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	var file zapcore.WriteSyncer
	if cfg.FilePath != "" {
		w, err := NewFileWriterWithConfig(cfg.FilePath, cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file writer: %w", err)
		}
		file = w
	}

	level := zap.NewAtomicLevelAt(cfg.Level)
	core := NewMultiCore(level, zapcore.AddSync(console), file, cfg.Development)

	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{
		zap:           zl,
		sugar:         zl.Sugar(),
		level:         level,
		isDevelopment: cfg.Development,
		logFilePath:   cfg.FilePath,
	}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	zl := zap.NewNop()
	return &Logger{zap: zl, sugar: zl.Sugar(), level: zap.NewAtomicLevel()}
}

// Sync flushes buffered entries. Call before exiting.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// Infof logs a formatted message at InfoLevel.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Named returns a child logger with a sub-name, e.g. "runtime".
func (l *Logger) Named(name string) *Logger {
	zl := l.zap.Named(name)
	return &Logger{
		zap:           zl,
		sugar:         zl.Sugar(),
		level:         l.level,
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.zap.With(fields...)
	return &Logger{
		zap:           zl,
		sugar:         zl.Sugar(),
		level:         l.level,
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap returns the underlying zap.Logger, the form library packages accept.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment reports whether the logger was built in development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the log file path, or "" for console-only loggers.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}
