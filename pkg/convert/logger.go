package convert

import "go.uber.org/zap"

var converterLog = zap.NewNop()

// EnableDebugLogging routes converter diagnostics to l. It must be called
// before converters are built.
func EnableDebugLogging(l *zap.Logger) {
	converterLog = l
}
