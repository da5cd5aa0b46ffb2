package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Garik-/midivae/internal/walk"
	"github.com/Garik-/midivae/pkg/convert"
	"github.com/Garik-/midivae/pkg/vae"
)

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

func enableDebugLogging(l *zap.Logger) {
	walk.EnableDebugLogging(l.Named("walk"))
	convert.EnableDebugLogging(l.Named("convert"))
	vae.EnableDebugLogging(l.Named("vae"))
}
