// Package log is the process wide logger of the plugin. Until a plugin
// logger is set it writes to stderr through zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger HoldLogger = NewZapLogger(newBootstrapZap())
)

type HoldLogger interface {
	Infof(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

func SetLogger(holdLogger HoldLogger) {
	mu.Lock()
	defer mu.Unlock()
	logger = holdLogger
}

func current() HoldLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Infof(format string, v ...interface{}) {
	current().Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// ZapLogger logs through a sugared zap logger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Infof(format string, v ...interface{}) {
	z.s.Infof(format, v...)
}

func (z *ZapLogger) Debugf(format string, v ...interface{}) {
	z.s.Debugf(format, v...)
}

func (z *ZapLogger) Warnf(format string, v ...interface{}) {
	z.s.Warnf(format, v...)
}

// newBootstrapZap builds the logger used before the plugin is initialized.
// Stdout is reserved for json-rpc, so it only ever writes to stderr.
func newBootstrapZap() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("holdinvoice")
}
