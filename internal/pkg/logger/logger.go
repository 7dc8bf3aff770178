package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/speedai/speedai/internal/pkg/env"
)

// LogConfig holds the logger settings.
type LogConfig struct {
	Level       string
	Development bool
}

var log *zap.Logger

// ConfigFromEnv reads LOG_LEVEL and APP_ENV.
func ConfigFromEnv() *LogConfig {
	return &LogConfig{
		Level:       env.GetEnv("LOG_LEVEL", "info"),
		Development: env.IsDev(),
	}
}

// InitLogger builds the process logger and installs it as zap's global logger.
func InitLogger(cfg *LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	log = l
	zap.ReplaceGlobals(l)
	return l, nil
}

// GetLogger returns the process logger, or zap's global logger before InitLogger.
func GetLogger() *zap.Logger {
	if log == nil {
		return zap.L()
	}
	return log
}

// Sync flushes buffered log entries.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
