// Package utils provides logging, vector math and display helpers.
package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the process logger. Debug mode logs human-readable lines at debug
// level; otherwise JSON at info level with ISO8601 timestamps. Both write to stderr so
// command output on stdout stays machine-readable.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	cfg.InitialFields = map[string]interface{}{"app": "schemarag"}
	return cfg.Build()
}
