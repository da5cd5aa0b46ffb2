package walk

import "go.uber.org/zap"

var walkLog = zap.NewNop()

func EnableDebugLogging(l *zap.Logger) {
	walkLog = l
}
