// Package logging builds the structured logger used by the command: a zap
// core exposed through log/slog so library packages depend only on
// *slog.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures a rotating log file.
type FileConfig struct {
	// Filename is the log file path.
	Filename string

	// MaxSize is the size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// MaxAge is the number of days rotated files are kept.
	MaxAge int

	// Compress gzips rotated files.
	Compress bool
}

// Config configures the logger.
type Config struct {
	// Level is debug, info, warn or error. Default: info.
	Level string

	// Format is "console" or "json". Default: console.
	Format string

	// Console enables output to Output.
	Console bool

	// Output receives console output. Default: os.Stderr.
	Output io.Writer

	// File enables a rotating log file in addition to the console.
	File *FileConfig
}

// New returns a logger for cfg and a function that flushes and closes its
// outputs.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	enabler := zap.NewAtomicLevelAt(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	var closers []io.Closer

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		enc, err := encoder(cfg.Format, encCfg, true)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(out), enabler))
	}

	if cfg.File != nil && cfg.File.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		// Files are always JSON so they can be shipped as-is.
		enc, _ := encoder("json", encCfg, false)
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(lj), enabler))
		closers = append(closers, lj)
	}

	core := zapcore.NewTee(cores...)
	zl := zap.New(core)
	logger := slog.New(zapslog.NewHandler(core, handlerOptions(level)))

	closeFn := func() error {
		_ = zl.Sync()
		var firstErr error
		for _, c := range closers {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return logger, closeFn, nil
}

func encoder(format string, cfg zapcore.EncoderConfig, console bool) (zapcore.Encoder, error) {
	switch strings.ToLower(format) {
	case "", "console", "text":
		if console {
			cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		return zapcore.NewConsoleEncoder(cfg), nil
	case "json":
		return zapcore.NewJSONEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
}

// ParseLevel parses a level name. The empty string is info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging: %w", err)
	}
	return level, nil
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(zapslog.NewHandler(zapcore.NewNopCore(), handlerOptions(zapcore.InfoLevel)))
}

// LoggerName is the name attached to every entry.
const LoggerName = "waweb"

// handlerOptions names the logger and records call sites at debug level.
func handlerOptions(level zapcore.Level) *zapslog.HandlerOptions {
	return &zapslog.HandlerOptions{
		LoggerName: LoggerName,
		AddSource:  level <= zapcore.DebugLevel,
	}
}
