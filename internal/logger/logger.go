// Package logger builds the zap logger shared by the api and consumer
// binaries.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given runtime environment. Production logs
// JSON with sampling off; nudge volume is low and admission decisions must
// all reach the log.
func New(environment string) (*zap.Logger, error) {
	var config zap.Config

	switch environment {
	case "production":
		config = zap.NewProductionConfig()
		config.Sampling = nil
	default:
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return config.Build(zap.AddCaller())
}
