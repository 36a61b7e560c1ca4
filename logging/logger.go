package logging

import (
	"context"
	"log"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// level reads LOG_LEVEL as either a zap level name ("debug") or its numeric
// value ("-1"). Anything else means info.
func level() zapcore.Level {
	raw := os.Getenv("LOG_LEVEL")
	if n, err := strconv.Atoi(raw); err == nil {
		return zapcore.Level(n)
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(raw)); err == nil && raw != "" {
		return lvl
	}
	return zapcore.InfoLevel
}

func productionConfig() zap.Config {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level())
	zapCfg.EncoderConfig.CallerKey = "ln"
	zapCfg.EncoderConfig.FunctionKey = ""
	zapCfg.EncoderConfig.LevelKey = "severity"
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	return zapCfg
}

// NewLogger builds the process logger, installs it as the zap global and
// returns a func that restores the previous global and flushes.
func NewLogger() (*zap.Logger, func()) {
	logger, err := productionConfig().Build()
	if err != nil {
		log.Fatalf("fail to init logger, error: %v", err)
	}

	undo := zap.ReplaceGlobals(logger)

	return logger, func() {
		undo()
		_ = logger.Sync()
	}
}

// ZapLogger adapts a zap logger to the key/value Logger interfaces used by
// the receiver packages.
type ZapLogger struct {
	s *zap.SugaredLogger
}

func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *ZapLogger) Debug(_ context.Context, msg string, kv ...any) { z.s.Debugw(msg, kv...) }
func (z *ZapLogger) Info(_ context.Context, msg string, kv ...any)  { z.s.Infow(msg, kv...) }
func (z *ZapLogger) Warn(_ context.Context, msg string, kv ...any)  { z.s.Warnw(msg, kv...) }
func (z *ZapLogger) Error(_ context.Context, msg string, kv ...any) { z.s.Errorw(msg, kv...) }
