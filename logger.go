package wsns

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger suited to env: JSON output at info level in
// production, colored console output at debug level otherwise. The test
// environment only logs warnings and above.
func NewLogger(env Environment) (*zap.Logger, error) {
	switch env {
	case Production:
		return zap.NewProduction()
	case Test:
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		return config.Build()
	}
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config.Build()
}
