package vae

import "go.uber.org/zap"

var modelLog = zap.NewNop()

func EnableDebugLogging(l *zap.Logger) {
	modelLog = l
}
