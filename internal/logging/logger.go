// Package logging builds the zap loggers used by the binaries.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Debug lowers the level from info to debug.
	Debug bool
	// File, when set, receives JSON lines in addition to the console.
	File string
	// Console overrides the console writer. Defaults to colored stdout.
	Console io.Writer
}

// New builds a logger that writes colored console output and, when
// opts.File is set, JSON lines to that file. The returned function closes
// the file.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.ISO8601TimeEncoder
	pe.MessageKey = "message"
	pe.TimeKey = "time"
	fileEncoder := zapcore.NewJSONEncoder(pe)

	pe.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(pe)

	console := opts.Console
	if console == nil {
		console = colorable.NewColorableStdout()
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), level),
	}

	closeFn := func() {}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(f), level))
		closeFn = func() { f.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() {
		logger.Sync()
		closeFn()
	}, nil
}
