package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level   zapcore.Level
	console bool
}

type Option func(*options)

// WithLevel sets the minimum level from a name such as "debug"; unknown names
// keep the default info level.
func WithLevel(name string) Option {
	return func(o *options) {
		if lvl, err := zapcore.ParseLevel(name); err == nil {
			o.level = lvl
		}
	}
}

// WithConsole mirrors log lines to stderr.
func WithConsole() Option {
	return func(o *options) { o.console = true }
}

func NewLogger(logDir string, opts ...Option) (*zap.Logger, error) {
	o := options{level: zap.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "safezone.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, o.level)
	if o.console {
		core = zapcore.NewTee(core, zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), o.level))
	}
	return zap.New(core), nil
}
