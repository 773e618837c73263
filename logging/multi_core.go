package logging

import (
	"go.uber.org/zap/zapcore"
)

// NewMultiCore tees console and file output at a shared level.
//
// The file side always encodes JSON. The console side is colored and
// human-readable in development mode and JSON otherwise. A nil fileWriter
// yields a console-only core.
//
// Example:
//
//	file, _ := NewFileWriter("tflitebridge.log")
//	core := NewMultiCore(zapcore.InfoLevel, zapcore.AddSync(os.Stderr), file, true)
//	logger := zap.New(core)
func NewMultiCore(level zapcore.LevelEnabler, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	if fileWriter == nil {
		return consoleCore
	}

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level)
	return zapcore.NewTee(consoleCore, fileCore)
}
