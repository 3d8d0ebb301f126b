// Package logging builds the zap loggers used across the server.
//
// Production mode writes JSON lines to stderr; development mode writes
// human-readable console output. Components receive a *zap.Logger and
// attach their own fields with With.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger at the given level writing to stderr.
func New(level string, development bool) (*zap.Logger, error) {
	return NewWithWriter(level, development, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(level string, development bool, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		LevelKey:      "level",
		NameKey:       "logger",
		MessageKey:    "message",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}

	var encoder zapcore.Encoder
	if development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), lvl)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// ParseLevel maps a config string to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
