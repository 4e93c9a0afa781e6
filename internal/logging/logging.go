// Package logging builds the zap logger shared by tether components.
//
// Diagnostics go to a JSON file under the log directory. The terminal belongs
// to the UI, so console output is only added on request and is meant for
// headless runs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the diagnostic log written inside the log directory.
const FileName = "tether.log"

// Options configure New.
type Options struct {
	// Dir holds the diagnostic log. Empty disables the file sink.
	Dir string
	// Console also writes human-readable entries to Stderr.
	Console bool
	Debug   bool
	Stderr  io.Writer
}

// New returns a logger and a close func that syncs and releases the file.
func New(opts Options) (*zap.SugaredLogger, func() error, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	closeFile := func() error { return nil }

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(opts.Dir, FileName)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open diagnostic log: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig()),
			zapcore.AddSync(file),
			level,
		))
		closeFile = file.Close
	}

	if opts.Console {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(cfg),
			zapcore.AddSync(w),
			level,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop().Sugar(), func() error { return nil }, nil
	}

	logger := zap.New(zapcore.NewTee(cores...)).Named("tether")
	closer := func() error {
		_ = logger.Sync()
		return closeFile()
	}
	return logger.Sugar(), closer, nil
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		LevelKey:      "level",
		NameKey:       "logger",
		MessageKey:    "message",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}
}
